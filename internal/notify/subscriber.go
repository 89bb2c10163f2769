package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const maxBackoff = 16 * time.Second

// Subscriber reads records from a Hub, reconnecting with exponential backoff.
type Subscriber struct {
	logger *slog.Logger
	url    string
}

// NewSubscriber creates a Subscriber for the given websocket URL.
func NewSubscriber(logger *slog.Logger, url string) *Subscriber {
	return &Subscriber{logger: logger, url: url}
}

// Stream sends decoded records to out until ctx is cancelled.
func (s *Subscriber) Stream(ctx context.Context, out chan<- Record) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			s.logger.Info("Subscriber: context cancelled, shutting down")
			return nil
		}

		s.logger.Info("Subscriber: connecting", "url", s.url, "backoff", backoff)
		c, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Error("Subscriber: connection failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		backoff = time.Second
		s.logger.Info("Subscriber: connected")
		if done := s.read(ctx, c, out); done {
			return nil
		}
	}
}

// read returns true when ctx ended the stream and false when the connection dropped.
func (s *Subscriber) read(ctx context.Context, c *websocket.Conn, out chan<- Record) bool {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer func() {
		stop()
		c.Close()
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true
			}
			s.logger.Error("Subscriber: failed to read message", "error", err)
			return false
		}

		var rec Record
		if err := json.Unmarshal(message, &rec); err != nil {
			s.logger.Warn("Subscriber: failed to parse message", "error", err)
			continue
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			return true
		}
	}
}
