package store

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"inverter-drive/internal/drive"
)

// EventWriter journals fault transitions from a goroutine so the tick that
// raised them never waits on sqlite.
type EventWriter struct {
	store   *Store
	runID   string
	ch      chan drive.FaultTransition
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
	logger  *zap.Logger
}

func NewEventWriter(s *Store, runID string, queueSize int, logger *zap.Logger) *EventWriter {
	if queueSize < 1 {
		queueSize = 64
	}
	w := &EventWriter{
		store:  s,
		runID:  runID,
		ch:     make(chan drive.FaultTransition, queueSize),
		logger: logger,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Observe is a drive.FaultObserver. Drops when the queue is full.
func (w *EventWriter) Observe(t drive.FaultTransition) {
	select {
	case w.ch <- t:
	default:
		w.dropped.Add(1)
		w.logger.Warn("Fault journal queue full, event dropped",
			zap.Stringer("from", t.From), zap.Stringer("to", t.To))
	}
}

func (w *EventWriter) loop() {
	defer w.wg.Done()
	for t := range w.ch {
		if err := w.store.RecordFault(w.runID, t); err != nil {
			w.logger.Error("Failed to record fault event", zap.Error(err))
		}
	}
}

// Close writes everything queued and stops. Observe must not be called after.
func (w *EventWriter) Close() {
	w.once.Do(func() { close(w.ch) })
	w.wg.Wait()
}

func (w *EventWriter) Dropped() uint64 { return w.dropped.Load() }
