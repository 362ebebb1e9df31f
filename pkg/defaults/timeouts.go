// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package defaults

import "time"

// Discovery timeouts for cluster-level queries.
const (
	// DiscoveryTimeout bounds node and pod listing for one diagnosis run.
	DiscoveryTimeout = 60 * time.Second

	// HelmInspectTimeout bounds the helm CLI calls of a chart inspection.
	HelmInspectTimeout = 30 * time.Second
)

// Output timeouts.
const (
	// ConfigMapWriteTimeout is the timeout for writing reports to ConfigMaps.
	// Generous to accommodate client-side rate limiting after heavy API usage.
	ConfigMapWriteTimeout = 30 * time.Second
)
