package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Batch writer — buffers trade and alert rows, flushes on interval
// ---------------------------------------------------------------------------

// BatchWriter batches trade and alert rows and flushes them to the store
// periodically. Discovery produces rows far faster than single-row inserts
// keep up during a sweep.
type BatchWriter struct {
	store         *Store
	batchSize     int
	flushInterval time.Duration
	log           zerolog.Logger

	mu         sync.Mutex
	tradeBuf   []TradeRecord
	alertBuf   []AlertRecord
	closed     bool
	flushCount int64
	errorCount int64
}

// WriterStats reports flush activity and buffer depth.
type WriterStats struct {
	Flushes       int64 `json:"flushes"`
	Errors        int64 `json:"errors"`
	PendingTrades int   `json:"pending_trades"`
	PendingAlerts int   `json:"pending_alerts"`
}

// NewBatchWriter creates a writer that flushes every flushInterval.
func NewBatchWriter(store *Store, batchSize int, flushInterval time.Duration, log zerolog.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchWriter{
		store:         store,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           log,
		tradeBuf:      make([]TradeRecord, 0, batchSize),
		alertBuf:      make([]AlertRecord, 0, batchSize),
	}
}

// WriteTrade adds a trade row to the buffer.
func (w *BatchWriter) WriteTrade(t TradeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	w.tradeBuf = append(w.tradeBuf, t)
	return nil
}

// WriteAlert adds an alert row to the buffer.
func (w *BatchWriter) WriteAlert(a AlertRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	w.alertBuf = append(w.alertBuf, a)
	return nil
}

// Start runs the flush loop. Blocks until the context is cancelled, then
// performs a final flush so shutdown never drops buffered rows.
func (w *BatchWriter) Start(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	w.log.Info().Str("component", "store").
		Int("batch_size", w.batchSize).
		Dur("flush_interval", w.flushInterval).
		Msg("store: batch writer started")

	for {
		select {
		case <-ctx.Done():
			if err := w.Flush(); err != nil {
				w.log.Error().Str("component", "store").Err(err).Msg("store: final flush failed")
			}
			return
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.log.Error().Str("component", "store").Err(err).Msg("store: periodic flush failed")
			}
		}
	}
}

// Flush writes all buffered rows.
func (w *BatchWriter) Flush() error {
	w.mu.Lock()
	trades := w.tradeBuf
	alerts := w.alertBuf
	w.tradeBuf = make([]TradeRecord, 0, w.batchSize)
	w.alertBuf = make([]AlertRecord, 0, w.batchSize)
	w.mu.Unlock()

	if len(trades) == 0 && len(alerts) == 0 {
		return nil
	}

	var firstErr error
	if len(trades) > 0 {
		if err := w.store.InsertTrades(trades); err != nil {
			w.log.Error().Str("component", "store").Err(err).Int("count", len(trades)).
				Msg("store: trade flush failed")
			w.bumpError()
			firstErr = err
		}
	}
	if len(alerts) > 0 {
		if err := w.store.InsertAlerts(alerts); err != nil {
			w.log.Error().Str("component", "store").Err(err).Int("count", len(alerts)).
				Msg("store: alert flush failed")
			w.bumpError()
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	w.mu.Lock()
	w.flushCount++
	w.mu.Unlock()
	w.log.Debug().Str("component", "store").
		Int("trades", len(trades)).
		Int("alerts", len(alerts)).
		Msg("store: batch flushed")
	return firstErr
}

func (w *BatchWriter) bumpError() {
	w.mu.Lock()
	w.errorCount++
	w.mu.Unlock()
}

// Close flushes once more and stops accepting rows.
func (w *BatchWriter) Close() error {
	err := w.Flush()
	w.mu.Lock()
	w.closed = true
	flushes, errs := w.flushCount, w.errorCount
	w.mu.Unlock()
	w.log.Info().Str("component", "store").
		Int64("flushes", flushes).
		Int64("errors", errs).
		Msg("store: batch writer closed")
	return err
}

// Stats returns writer counters.
func (w *BatchWriter) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WriterStats{
		Flushes:       w.flushCount,
		Errors:        w.errorCount,
		PendingTrades: len(w.tradeBuf),
		PendingAlerts: len(w.alertBuf),
	}
}
