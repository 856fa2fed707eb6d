package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// recordNamespace scopes the name based ids derived from installation keys.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("authcore.last_request_telemetry"))

func lastRequestTelemetryRecordID(installationKey string) string {
	return uuid.NewSHA1(recordNamespace, []byte(installationKey)).String()
}

func lastRequestTelemetryHandlers() repository.ModelHandlers[*lastRequestTelemetryRecord] {
	return repository.ModelHandlers[*lastRequestTelemetryRecord]{
		NewRecord: func() *lastRequestTelemetryRecord {
			return &lastRequestTelemetryRecord{}
		},
		GetID: func(record *lastRequestTelemetryRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *lastRequestTelemetryRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "installation_key"
		},
		GetIdentifierValue: func(record *lastRequestTelemetryRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.InstallationKey)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
