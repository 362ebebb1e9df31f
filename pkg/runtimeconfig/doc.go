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

// Package runtimeconfig inspects containerd configuration text for NVIDIA
// runtime wiring.
//
// The inspection is a pure text heuristic with no I/O: content is fetched by
// callers (from a node via an inspection pod, or from the local filesystem)
// and handed in as a string. Inspect never fails; absence of markers simply
// reports "not configured".
package runtimeconfig
