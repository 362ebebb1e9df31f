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

package serializer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	accorev1 "k8s.io/client-go/applyconfigurations/core/v1"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/defaults"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/header"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/client"
)

// ConfigMapURIScheme is the URI prefix selecting ConfigMap output.
const ConfigMapURIScheme = "cm://"

// ConfigMapWriter writes serialized report data to a Kubernetes ConfigMap.
// The ConfigMap is created if it doesn't exist, or updated if it does.
type ConfigMapWriter struct {
	namespace string
	name      string
	format    Format
}

// NewConfigMapWriter creates a new ConfigMapWriter that writes to the specified
// namespace and ConfigMap name in the given format.
func NewConfigMapWriter(namespace, name string, format Format) *ConfigMapWriter {
	if format.IsUnknown() {
		slog.Warn("unknown format, defaulting to JSON", "format", format)
		format = FormatJSON
	}
	return &ConfigMapWriter{
		namespace: namespace,
		name:      name,
		format:    format,
	}
}

// Serialize writes the report data to a ConfigMap.
// The ConfigMap will have:
// - data.report.{yaml|json|txt}: The serialized report content
// - data.format: The format used
// - data.timestamp: ISO 8601 timestamp of when the report was created
func (w *ConfigMapWriter) Serialize(ctx context.Context, report any) error {
	writeCtx, cancel := context.WithTimeout(ctx, defaults.ConfigMapWriteTimeout)
	defer cancel()

	clientset, _, err := client.GetKubeClient()
	if err != nil {
		return fmt.Errorf("failed to get kubernetes client: %w", err)
	}

	var content []byte
	var extension string
	switch w.format {
	case FormatJSON:
		content, err = serializeJSON(report)
		extension = "json"
	case FormatYAML:
		content, err = serializeYAML(report)
		extension = "yaml"
	case FormatTable:
		content, err = serializeTable(report)
		extension = "txt"
	default:
		return fmt.Errorf("unsupported format for ConfigMap: %s", w.format)
	}
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	var reportVersion string
	var reportKind string
	var reportTimestamp string

	// Extract header information when the report carries one.
	if headerData, ok := report.(interface {
		GetKind() header.Kind
		GetMetadata() map[string]string
	}); ok {
		reportKind = headerData.GetKind().String()
		metadata := headerData.GetMetadata()
		if v, exists := metadata["version"]; exists {
			reportVersion = v
		}
		if ts, exists := metadata["timestamp"]; exists {
			reportTimestamp = ts
		}
	}

	if reportVersion == "" {
		reportVersion = "unknown"
	}
	if reportKind == "" {
		reportKind = header.KindClusterStatus.String()
	}
	if reportTimestamp == "" {
		reportTimestamp = time.Now().UTC().Format(time.RFC3339)
	}

	dataKey := fmt.Sprintf("report.%s", extension)
	configMapData := map[string]string{
		dataKey:     string(content),
		"format":    string(w.format),
		"timestamp": reportTimestamp,
	}

	configMap := accorev1.ConfigMap(w.name, w.namespace).
		WithLabels(map[string]string{
			"app.kubernetes.io/name":      "gpudoctor",
			"app.kubernetes.io/component": reportKind,
			"app.kubernetes.io/version":   reportVersion,
		}).
		WithData(configMapData)

	// Server-Side Apply gives an atomic create-or-update; Force takes
	// ownership from a previous field manager.
	slog.Info("applying ConfigMap",
		"namespace", w.namespace,
		"name", w.name,
		"format", w.format)

	_, err = clientset.CoreV1().ConfigMaps(w.namespace).Apply(
		writeCtx,
		configMap,
		metav1.ApplyOptions{
			FieldManager: "gpudoctor",
			Force:        true,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to apply ConfigMap: %w", err)
	}

	return nil
}

// Close is a no-op for ConfigMapWriter as there are no resources to release.
// This method exists to satisfy the Closer interface.
func (w *ConfigMapWriter) Close() error {
	return nil
}

// parseConfigMapURI parses a ConfigMap URI in the format cm://namespace/name
// and returns the namespace and name components.
// Returns an error if the URI is malformed.
func parseConfigMapURI(uri string) (namespace, name string, err error) {
	if !strings.HasPrefix(uri, ConfigMapURIScheme) {
		return "", "", fmt.Errorf("invalid ConfigMap URI: must start with %s", ConfigMapURIScheme)
	}

	path := strings.TrimPrefix(uri, ConfigMapURIScheme)

	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid ConfigMap URI format: expected %snamespace/name, got %s", ConfigMapURIScheme, uri)
	}

	namespace = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])

	if namespace == "" {
		return "", "", fmt.Errorf("invalid ConfigMap URI: namespace cannot be empty")
	}
	if name == "" {
		return "", "", fmt.Errorf("invalid ConfigMap URI: name cannot be empty")
	}

	return namespace, name, nil
}
