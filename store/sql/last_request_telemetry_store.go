package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-authcore/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultInstallationKey identifies the telemetry row when a process hosts a
// single client installation.
const DefaultInstallationKey = "default"

// LastRequestTelemetryStore persists the last request telemetry of one client
// installation as a single row.
type LastRequestTelemetryStore struct {
	db              *bun.DB
	repo            repository.Repository[*lastRequestTelemetryRecord]
	installationKey string
	now             func() time.Time
}

func NewLastRequestTelemetryStore(db *bun.DB, installationKey string) (*LastRequestTelemetryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	installationKey = normalizeInstallationKey(installationKey)
	repo := repository.NewRepository[*lastRequestTelemetryRecord](db, lastRequestTelemetryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid last request telemetry repository wiring: %w", err)
		}
	}
	return &LastRequestTelemetryStore{
		db:              db,
		repo:            repo,
		installationKey: installationKey,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *LastRequestTelemetryStore) InstallationKey() string {
	if s == nil {
		return ""
	}
	return s.installationKey
}

func (s *LastRequestTelemetryStore) Load(ctx context.Context) (core.LastRequestTelemetry, bool, error) {
	if s == nil || s.repo == nil {
		return core.LastRequestTelemetry{}, false, fmt.Errorf("sqlstore: last request telemetry store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("installation_key", "=", s.installationKey),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.LastRequestTelemetry{}, false, err
	}
	if len(records) == 0 {
		return core.LastRequestTelemetry{}, false, nil
	}
	return records[0].toDomain(), true, nil
}

func (s *LastRequestTelemetryStore) Save(ctx context.Context, telemetry core.LastRequestTelemetry) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: last request telemetry store is not configured")
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findLastRequestTelemetryTx(ctx, tx, s.installationKey)
		if err != nil {
			return err
		}
		if record == nil {
			_, createErr := s.repo.CreateTx(ctx, tx, newLastRequestTelemetryRecord(s.installationKey, telemetry, now))
			return createErr
		}
		record.apply(telemetry, now)
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("schema_version", "silent_success_count", "failed_requests", "platform", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func findLastRequestTelemetryTx(
	ctx context.Context,
	tx bun.Tx,
	installationKey string,
) (*lastRequestTelemetryRecord, error) {
	record := &lastRequestTelemetryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.installation_key = ?", installationKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeInstallationKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultInstallationKey
	}
	return key
}
