package strategy

import (
	"context"
	"iter"
	"sync"

	"alertlab/internal/domain"
)

// Recorder consumes the event sequence of an evaluation.
// Recorders run after the evaluation, never inside it.
type Recorder interface {
	Record(ctx context.Context, callID string, events iter.Seq[domain.SimulationEvent]) error
}

// SliceRecorder collects events in memory, keyed by call.
type SliceRecorder struct {
	mu     sync.Mutex
	events map[string][]domain.SimulationEvent
}

// NewSliceRecorder creates an empty SliceRecorder.
func NewSliceRecorder() *SliceRecorder {
	return &SliceRecorder{events: make(map[string][]domain.SimulationEvent)}
}

// Record appends all events of the sequence.
func (r *SliceRecorder) Record(ctx context.Context, callID string, events iter.Seq[domain.SimulationEvent]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.events[callID] = append(r.events[callID], ev)
	}
	return nil
}

// Events returns a copy of the events recorded for a call.
func (r *SliceRecorder) Events(callID string) []domain.SimulationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.SimulationEvent, len(r.events[callID]))
	copy(out, r.events[callID])
	return out
}

// ChannelRecorder forwards events to a channel.
type ChannelRecorder struct {
	ch chan<- CallEvent
}

// CallEvent is an event tagged with its call.
type CallEvent struct {
	CallID string
	Event  domain.SimulationEvent
}

// NewChannelRecorder creates a recorder sending to ch.
func NewChannelRecorder(ch chan<- CallEvent) *ChannelRecorder {
	return &ChannelRecorder{ch: ch}
}

// Record sends every event, blocking until the consumer receives it or ctx is done.
func (r *ChannelRecorder) Record(ctx context.Context, callID string, events iter.Seq[domain.SimulationEvent]) error {
	for ev := range events {
		select {
		case r.ch <- CallEvent{CallID: callID, Event: ev}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

var (
	_ Recorder = (*SliceRecorder)(nil)
	_ Recorder = (*ChannelRecorder)(nil)
)
