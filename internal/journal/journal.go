// Package journal records every order outcome to one or more sinks.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcomes
const (
	OutcomePlaced = "placed"
	OutcomeNoop   = "noop"
	OutcomeFailed = "failed"
)

// Entry is one executor outcome
type Entry struct {
	ID        string         `json:"id"`
	Event     time.Time      `json:"event"`
	Outcome   string         `json:"outcome"`
	Mode      string         `json:"mode"`
	Tag       string         `json:"tag"`
	Symbol    string         `json:"symbol"`
	Side      string         `json:"side"`
	Quantity  int            `json:"quantity"`
	OrderType string         `json:"order_type"`
	Reason    string         `json:"reason,omitempty"`
	Error     string         `json:"error,omitempty"`
	Request   map[string]any `json:"request"`
	Response  map[string]any `json:"response,omitempty"`
}

// Sink stores journal entries
type Sink interface {
	Name() string
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Multi fans one entry out to every sink. A failing sink does not stop the
// others.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Write(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
