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

package session

import (
	"fmt"

	"github.com/distribution/reference"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

// DefaultImage is the image used for inspection pods when none is configured.
// Any image providing a POSIX shell and coreutils works.
const DefaultImage = "docker.io/library/busybox:1.36"

// ResolveImage validates the configured inspection image and returns its
// fully qualified form. Bare names get the implicit latest tag made
// explicit, so the pod spec records exactly what will be pulled.
func ResolveImage(image string) (string, error) {
	if image == "" {
		return "", apperrors.New(apperrors.ErrCodeInvalidRequest, "inspection image is empty")
	}

	ref, err := reference.ParseAnyReference(image)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid inspection image reference: %s", image), err)
	}

	if named, ok := ref.(reference.Named); ok {
		if reference.IsNameOnly(named) {
			return reference.TagNameOnly(named).String(), nil
		}
	}
	return ref.String(), nil
}
