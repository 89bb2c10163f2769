// Package notify hands trade and economic events to external listeners.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Record kinds.
const (
	KindTrade    = "trade"
	KindEconomic = "economic"
	KindTick     = "tick"
)

// Record is the opaque envelope published for every event.
type Record struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Tick      int64           `json:"tick"`
	RegionID  string          `json:"region_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewRecord wraps payload in a Record.
func NewRecord(kind string, tick int64, regionID string, payload any) (Record, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Tick:      tick,
		RegionID:  regionID,
		Timestamp: time.Now().UTC(),
		Payload:   b,
	}, nil
}

// Sink receives published records.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

// LogSink writes records to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, rec Record) error {
	s.logger.InfoContext(ctx, "Event published",
		"id", rec.ID,
		"kind", rec.Kind,
		"tick", rec.Tick,
		"region", rec.RegionID,
		"payload", string(rec.Payload),
	)
	return nil
}

// MultiSink fans a record out to several sinks and joins their errors.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
