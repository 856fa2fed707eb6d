package sqlstore

import (
	"time"

	"github.com/goliatone/go-authcore/core"
	"github.com/uptrace/bun"
)

type lastRequestTelemetryRecord struct {
	bun.BaseModel `bun:"table:authcore_last_request_telemetry,alias:alrt"`

	ID                 string               `bun:"id,pk"`
	InstallationKey    string               `bun:"installation_key,notnull"`
	SchemaVersion      string               `bun:"schema_version,notnull"`
	SilentSuccessCount int                  `bun:"silent_success_count,notnull"`
	FailedRequests     []core.FailedRequest `bun:"failed_requests,type:jsonb,notnull"`
	Platform           map[string]string    `bun:"platform,type:jsonb,notnull"`
	CreatedAt          time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newLastRequestTelemetryRecord(installationKey string, telemetry core.LastRequestTelemetry, now time.Time) *lastRequestTelemetryRecord {
	record := &lastRequestTelemetryRecord{
		ID:              lastRequestTelemetryRecordID(installationKey),
		InstallationKey: installationKey,
		CreatedAt:       now,
	}
	record.apply(telemetry, now)
	return record
}

func (r *lastRequestTelemetryRecord) apply(telemetry core.LastRequestTelemetry, now time.Time) {
	copied := telemetry.Clone()
	r.SchemaVersion = copied.SchemaVersion
	r.SilentSuccessCount = copied.SilentSuccessCount
	r.FailedRequests = copied.FailedRequests
	if r.FailedRequests == nil {
		r.FailedRequests = []core.FailedRequest{}
	}
	r.Platform = copied.Platform
	if r.Platform == nil {
		r.Platform = map[string]string{}
	}
	r.UpdatedAt = now
}

func (r *lastRequestTelemetryRecord) toDomain() core.LastRequestTelemetry {
	if r == nil {
		return core.LastRequestTelemetry{}
	}
	telemetry := core.NewLastRequestTelemetry(r.SchemaVersion)
	telemetry.SilentSuccessCount = r.SilentSuccessCount
	telemetry.FailedRequests = append(telemetry.FailedRequests, r.FailedRequests...)
	for key, value := range r.Platform {
		telemetry.Platform[key] = value
	}
	return telemetry
}
