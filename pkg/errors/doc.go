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

// Package errors defines the structured error taxonomy used across the
// diagnostic run.
//
// Every failure surfaced by the system carries one of the ErrorCode values,
// which determines how it propagates:
//
//   - PROVISIONING_FAILED is fatal for one node only; the node's outcome
//     reports it and the run continues.
//   - REMOTE_EXEC_FAILED and PARSE_FAILED degrade a single probe or status
//     to unavailable/unknown without failing the node.
//   - DISCOVERY_FAILED is the only code fatal for the whole run.
//   - CLEANUP_FAILED is logged and swallowed; a leftover inspection pod is
//     recoverable manually.
//
// Use errors.As / HasCode to branch on codes rather than matching messages.
package errors
