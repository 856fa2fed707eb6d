package core

import (
	"context"
	"sync"
)

// LastRequestTelemetryCache persists the singleton last-request telemetry of
// one client installation. Load reports ok=false when nothing was saved yet.
type LastRequestTelemetryCache interface {
	Load(ctx context.Context) (telemetry LastRequestTelemetry, ok bool, err error)
	Save(ctx context.Context, telemetry LastRequestTelemetry) error
}

type MemoryLastRequestTelemetryCache struct {
	mu     sync.Mutex
	stored *LastRequestTelemetry
}

func NewMemoryLastRequestTelemetryCache() *MemoryLastRequestTelemetryCache {
	return &MemoryLastRequestTelemetryCache{}
}

func (c *MemoryLastRequestTelemetryCache) Load(context.Context) (LastRequestTelemetry, bool, error) {
	if c == nil {
		return LastRequestTelemetry{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stored == nil {
		return LastRequestTelemetry{}, false, nil
	}
	return c.stored.Clone(), true, nil
}

func (c *MemoryLastRequestTelemetryCache) Save(_ context.Context, telemetry LastRequestTelemetry) error {
	if c == nil {
		return nil
	}
	copied := telemetry.Clone()
	c.mu.Lock()
	c.stored = &copied
	c.mu.Unlock()
	return nil
}
