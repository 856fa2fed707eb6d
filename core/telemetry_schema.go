package core

import (
	"strings"
	"unicode"
)

const (
	TelemetrySchemaVersion     = "2"
	DefaultTelemetryByteBudget = 4096
	CurrentTelemetryHeaderName = "X-Client-Current-Telemetry"
	LastTelemetryHeaderName    = "X-Client-Last-Telemetry"
	telemetryTrue              = "1"
	telemetryFalse             = "0"
	telemetrySectionSeparator  = "|"
	telemetryFieldSeparator    = ","
)

// Telemetry keys recognized by the ledger.
const (
	TelemetryKeyAPIID                = "api_id"
	TelemetryKeyForceRefresh         = "force_refresh"
	TelemetryKeyBrokerAppUsed        = "broker_app_used"
	TelemetryKeyDeviceShared         = "is_device_shared"
	TelemetryKeyAccountStatus        = "account_status"
	TelemetryKeyTokenAge             = "token_age"
	TelemetryKeyAllTelemetryDataSent = "is_all_telemetry_data_sent"
)

// Header position is the only key the server has, so platform fields are
// always rendered in these orders.
var (
	currentPlatformFields = []string{
		TelemetryKeyBrokerAppUsed,
		TelemetryKeyDeviceShared,
		TelemetryKeyAccountStatus,
		TelemetryKeyTokenAge,
	}
	lastPlatformFields = []string{
		TelemetryKeyAllTelemetryDataSent,
		TelemetryKeyDeviceShared,
	}
)

func CurrentPlatformFields() []string {
	return append([]string(nil), currentPlatformFields...)
}

func LastPlatformFields() []string {
	return append([]string(nil), lastPlatformFields...)
}

func isCurrentPlatformField(key string) bool {
	return containsField(currentPlatformFields, key)
}

func isLastPlatformField(key string) bool {
	return containsField(lastPlatformFields, key)
}

func containsField(fields []string, key string) bool {
	for _, field := range fields {
		if field == key {
			return true
		}
	}
	return false
}

// SanitizeTelemetryValue makes value safe for a header section: separators
// and control characters are dropped and boolean words become 1 or 0.
func SanitizeTelemetryValue(value string) string {
	trimmed := strings.TrimSpace(value)
	switch strings.ToLower(trimmed) {
	case "true":
		return telemetryTrue
	case "false":
		return telemetryFalse
	}
	return strings.Map(func(r rune) rune {
		if r == '|' || r == ',' || unicode.IsControl(r) {
			return -1
		}
		return r
	}, trimmed)
}

func telemetryBool(value bool) string {
	if value {
		return telemetryTrue
	}
	return telemetryFalse
}

func renderFields(values []string) string {
	sanitized := make([]string, len(values))
	for i, value := range values {
		sanitized[i] = SanitizeTelemetryValue(value)
	}
	return strings.Join(sanitized, telemetryFieldSeparator)
}

func renderPlatformFields(fields []string, values map[string]string) string {
	ordered := make([]string, len(fields))
	for i, field := range fields {
		ordered[i] = values[field]
	}
	return renderFields(ordered)
}
