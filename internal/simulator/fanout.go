package simulator

import (
	"sync"

	"inverter-drive/internal/drive"
)

// Fanout forwards every sample to each registered sink in registration order.
// Sinks may be added while the runner is ticking.
type Fanout struct {
	mu    sync.RWMutex
	sinks []drive.Sink
}

var _ drive.Sink = (*Fanout)(nil)

func NewFanout(sinks ...drive.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add ignores nil sinks.
func (f *Fanout) Add(s drive.Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

func (f *Fanout) Accept(s drive.Sample) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Accept(s)
	}
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

// FaultFanout is the same idea for fault transitions.
type FaultFanout struct {
	mu        sync.RWMutex
	observers []drive.FaultObserver
}

func (f *FaultFanout) Add(o drive.FaultObserver) {
	if o == nil {
		return
	}
	f.mu.Lock()
	f.observers = append(f.observers, o)
	f.mu.Unlock()
}

// Observe has the drive.FaultObserver signature.
func (f *FaultFanout) Observe(t drive.FaultTransition) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, o := range f.observers {
		o(t)
	}
}
