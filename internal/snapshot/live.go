package snapshot

import (
	"context"
	"encoding/json"

	"hedgeware/internal/core"
	"hedgeware/pkg/decimals"
	apperrors "hedgeware/pkg/errors"
	"hedgeware/pkg/websocket"

	"golang.org/x/time/rate"
)

// LiveSource consumes a brokerage quote websocket for a single security.
// Next is paced to roughly one quote per second; between ticks the feed
// keeps overwriting the latest quote, so the driver always sees the
// freshest book.
type LiveSource struct {
	ticker  string
	client  *websocket.Client
	limiter *rate.Limiter
	logger  core.ILogger

	quotes chan core.Snapshot
	latest core.Snapshot
	seen   bool
	closed chan struct{}
}

type liveQuote struct {
	Ticker    string  `json:"ticker"`
	Ask       float64 `json:"ask"`
	Bid       float64 `json:"bid"`
	Timestamp string  `json:"timestamp"`
}

// NewLiveSource dials the quote URL and subscribes to the security.
func NewLiveSource(url, ticker string, logger core.ILogger) *LiveSource {
	s := &LiveSource{
		ticker:  ticker,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  logger.WithField("component", "live_source").WithField("ticker", ticker),
		quotes:  make(chan core.Snapshot, 1),
		closed:  make(chan struct{}),
	}

	s.client = websocket.NewClient(url, s.onMessage, s.logger)
	s.client.SetOnConnected(func() {
		if err := s.client.Send(map[string]string{"op": "subscribe", "ticker": ticker}); err != nil {
			s.logger.Error("Failed to subscribe to quote stream", "error", err)
		}
	})
	s.client.Start()

	return s
}

func (s *LiveSource) onMessage(message []byte) {
	var q liveQuote
	if err := json.Unmarshal(message, &q); err != nil {
		s.logger.Warn("Dropping malformed quote message", "error", err)
		return
	}
	if q.Ticker != "" && q.Ticker != s.ticker {
		return
	}

	snap := core.Snapshot{
		Ask:       decimals.FromFloat(q.Ask),
		Bid:       decimals.FromFloat(q.Bid),
		Timestamp: q.Timestamp,
	}

	// Keep only the freshest quote
	select {
	case <-s.quotes:
	default:
	}
	s.quotes <- snap
}

// Next blocks for the rate limiter, then returns the freshest quote,
// waiting for the first one if none has arrived yet.
func (s *LiveSource) Next(ctx context.Context) (core.Snapshot, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return core.Snapshot{}, err
	}

	select {
	case <-s.closed:
		return core.Snapshot{}, apperrors.ErrSourceClosed
	case snap := <-s.quotes:
		s.latest = snap
		s.seen = true
		return snap, nil
	default:
	}

	if s.seen {
		return s.latest, nil
	}

	select {
	case <-ctx.Done():
		return core.Snapshot{}, ctx.Err()
	case <-s.closed:
		return core.Snapshot{}, apperrors.ErrSourceClosed
	case snap := <-s.quotes:
		s.latest = snap
		s.seen = true
		return snap, nil
	}
}

// Exhausted is always false for a live feed.
func (s *LiveSource) Exhausted() bool { return false }

// Release tears down the websocket.
func (s *LiveSource) Release() {
	select {
	case <-s.closed:
		return
	default:
	}
	close(s.closed)
	s.client.Stop()
}

var _ core.SnapshotSource = (*LiveSource)(nil)
