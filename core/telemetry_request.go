package core

import (
	"strconv"
	"strings"
)

// FailedRequest identifies one failed command in the last-request history.
type FailedRequest struct {
	APIID         string `json:"api_id"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     string `json:"error_code"`
}

// CurrentRequestTelemetry accumulates the fields emitted while one command
// runs. It lives in the ledger until the command's result is flushed.
type CurrentRequestTelemetry struct {
	SchemaVersion string
	APIID         string
	ForceRefresh  bool
	Platform      map[string]string
}

func newCurrentRequestTelemetry(schemaVersion string) *CurrentRequestTelemetry {
	return &CurrentRequestTelemetry{
		SchemaVersion: schemaVersion,
		Platform:      map[string]string{},
	}
}

// put writes an already sanitized value. The first write of a platform key
// sticks; unknown keys are dropped.
func (t *CurrentRequestTelemetry) put(key string, value string) {
	switch key {
	case TelemetryKeyAPIID:
		t.APIID = value
	case TelemetryKeyForceRefresh:
		t.ForceRefresh = value == telemetryTrue
	default:
		if !isCurrentPlatformField(key) {
			return
		}
		if _, exists := t.Platform[key]; !exists {
			t.Platform[key] = value
		}
	}
}

func (t *CurrentRequestTelemetry) clone() CurrentRequestTelemetry {
	copied := *t
	copied.Platform = cloneStringMap(t.Platform)
	return copied
}

// HeaderString renders schema|api_id,force_refresh|platform fields.
func (t CurrentRequestTelemetry) HeaderString() string {
	if strings.TrimSpace(t.SchemaVersion) == "" {
		return ""
	}
	return strings.Join([]string{
		t.SchemaVersion,
		renderFields([]string{t.APIID, telemetryBool(t.ForceRefresh)}),
		renderPlatformFields(currentPlatformFields, t.Platform),
	}, telemetrySectionSeparator)
}

// LastRequestTelemetry is the persisted history carried to the next request.
type LastRequestTelemetry struct {
	SchemaVersion      string            `json:"schema_version"`
	SilentSuccessCount int               `json:"silent_success_count"`
	FailedRequests     []FailedRequest   `json:"failed_requests"`
	Platform           map[string]string `json:"platform,omitempty"`
}

func NewLastRequestTelemetry(schemaVersion string) LastRequestTelemetry {
	if strings.TrimSpace(schemaVersion) == "" {
		schemaVersion = TelemetrySchemaVersion
	}
	return LastRequestTelemetry{
		SchemaVersion:  schemaVersion,
		FailedRequests: []FailedRequest{},
		Platform:       map[string]string{},
	}
}

func (t LastRequestTelemetry) Clone() LastRequestTelemetry {
	copied := t
	copied.FailedRequests = append([]FailedRequest{}, t.FailedRequests...)
	copied.Platform = cloneStringMap(t.Platform)
	return copied
}

// copySharedValues returns a copy with the failed request list emptied. It
// is the starting point for building a budgeted header.
func (t LastRequestTelemetry) copySharedValues() LastRequestTelemetry {
	copied := t.Clone()
	copied.FailedRequests = []FailedRequest{}
	return copied
}

// deriveFrom copies the current request's platform fields that the
// last-request schema shares.
func (t *LastRequestTelemetry) deriveFrom(current CurrentRequestTelemetry) {
	if t.Platform == nil {
		t.Platform = map[string]string{}
	}
	for key, value := range current.Platform {
		if !isLastPlatformField(key) {
			continue
		}
		if _, exists := t.Platform[key]; !exists {
			t.Platform[key] = value
		}
	}
}

func (t *LastRequestTelemetry) appendFailedRequest(failed FailedRequest) {
	t.FailedRequests = append(t.FailedRequests, failed)
}

// removeFailedRequests drops every entry contained in sent, keeping order.
func (t *LastRequestTelemetry) removeFailedRequests(sent map[FailedRequest]struct{}) {
	if len(sent) == 0 || len(t.FailedRequests) == 0 {
		return
	}
	kept := t.FailedRequests[:0]
	for _, failed := range t.FailedRequests {
		if _, ok := sent[failed]; ok {
			continue
		}
		kept = append(kept, failed)
	}
	t.FailedRequests = kept
}

// HeaderString renders
// schema|silent_success_count|api_id,correlation_id,...|error,...|platform.
func (t LastRequestTelemetry) HeaderString() string {
	if strings.TrimSpace(t.SchemaVersion) == "" {
		return ""
	}
	identities := make([]string, 0, len(t.FailedRequests)*2)
	codes := make([]string, 0, len(t.FailedRequests))
	for _, failed := range t.FailedRequests {
		identities = append(identities, failed.APIID, failed.CorrelationID)
		codes = append(codes, failed.ErrorCode)
	}
	return strings.Join([]string{
		t.SchemaVersion,
		strconv.Itoa(t.SilentSuccessCount),
		renderFields(identities),
		renderFields(codes),
		renderPlatformFields(lastPlatformFields, t.Platform),
	}, telemetrySectionSeparator)
}

func cloneStringMap(values map[string]string) map[string]string {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return copied
}
