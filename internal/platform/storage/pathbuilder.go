package storage

import (
	"fmt"
	"strings"
)

// ExportPurpose captures what an exported object contains.
type ExportPurpose string

const (
	PurposeMetricsReport ExportPurpose = "metrics-report"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	TenantID string
	Year     int
	FileName string
}

// PathBuilder composes the object path for a given export purpose.
type PathBuilder func(PathParams) (string, error)

var pathBuilders = map[ExportPurpose]PathBuilder{
	PurposeMetricsReport: buildMetricsReportPath,
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ExportPurpose, params PathParams) (string, error) {
	builder, ok := pathBuilders[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported export purpose %q", purpose)
	}
	return builder(params)
}

func buildMetricsReportPath(params PathParams) (string, error) {
	tenantID, err := validateSegment("tenantID", params.TenantID)
	if err != nil {
		return "", err
	}
	if params.Year < 1 || params.Year > 9999 {
		return "", fmt.Errorf("storage: year %d is out of range", params.Year)
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exports/%s/metrics/%04d/%s", tenantID, params.Year, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
