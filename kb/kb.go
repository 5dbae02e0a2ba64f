package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/skymodel/model"
)

var (
	// ErrSourceExists indicates a source with the same ID is already stored.
	ErrSourceExists = errors.New("source already exists")
	// ErrSourceNotFound indicates a requested source was not found.
	ErrSourceNotFound = errors.New("source not found")
)

// EventType indicates what kind of change happened in the catalogue.
type EventType int

const (
	EventSourceAdded EventType = iota
	EventSourceUpdated
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type   EventType
	Source model.Source
}

// SourceCatalog is an in-memory, thread-safe store of sky-model sources.
// Iteration order is insertion order, so batches built from it are stable.
type SourceCatalog struct {
	mu sync.RWMutex

	sources map[string]*model.Source
	order   []string

	subs []func(Event)
}

// NewSourceCatalog constructs an empty catalogue.
func NewSourceCatalog() *SourceCatalog {
	return &SourceCatalog{
		sources: make(map[string]*model.Source),
	}
}

// AddSource adds a new source. It returns ErrSourceExists if the ID is taken.
func (c *SourceCatalog) AddSource(s *model.Source) error {
	if s == nil {
		return errors.New("source is nil")
	}
	c.mu.Lock()
	if _, exists := c.sources[s.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSourceExists, s.ID)
	}
	c.sources[s.ID] = s
	c.order = append(c.order, s.ID)
	event := Event{Type: EventSourceAdded, Source: *s}
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// GetSource returns a copy of the source with the given ID.
func (c *SourceCatalog) GetSource(id string) (model.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sources[id]
	if !ok {
		return model.Source{}, fmt.Errorf("%w: %q", ErrSourceNotFound, id)
	}
	return *s, nil
}

// ListSources returns a snapshot of all sources in insertion order.
func (c *SourceCatalog) ListSources() []model.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()

	res := make([]model.Source, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, *c.sources[id])
	}
	return res
}

// Len returns the number of stored sources.
func (c *SourceCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Batch snapshots the catalogue into double-precision columns. ids[i] is the
// source behind index i of every column.
func (c *SourceCatalog) Batch() (batch model.SourceBatch, ids []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.order)
	ra := make([]float64, n)
	dec := make([]float64, n)
	major := make([]float64, n)
	minor := make([]float64, n)
	pa := make([]float64, n)
	ids = make([]string, n)
	for i, id := range c.order {
		s := c.sources[id]
		ids[i] = id
		ra[i], dec[i] = s.RA, s.Dec
		major[i], minor[i], pa[i] = s.MajorFWHM, s.MinorFWHM, s.PositionAngle
	}
	return model.SourceBatch{
		RA:            model.Float64Column(ra),
		Dec:           model.Float64Column(dec),
		MajorFWHM:     model.Float64Column(major),
		MinorFWHM:     model.Float64Column(minor),
		PositionAngle: model.Float64Column(pa),
	}, ids
}

// ApplyOutcomes stores the coefficients of every succeeded outcome on the
// source ids[outcome.Index], clearing HasGaussian on sources that were
// skipped, and notifies subscribers once per updated source.
func (c *SourceCatalog) ApplyOutcomes(ids []string, outcomes []model.SourceOutcome) error {
	c.mu.Lock()
	var events []Event
	for _, o := range outcomes {
		if o.Index < 0 || o.Index >= len(ids) {
			c.mu.Unlock()
			return fmt.Errorf("outcome index %d outside %d ids", o.Index, len(ids))
		}
		s, ok := c.sources[ids[o.Index]]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrSourceNotFound, ids[o.Index])
		}
		switch o.Kind {
		case model.OutcomeSucceeded:
			s.GaussianA, s.GaussianB, s.GaussianC = o.A, o.B, o.C
			s.HasGaussian = true
		case model.OutcomeSkipped:
			s.HasGaussian = false
		default:
			continue
		}
		events = append(events, Event{Type: EventSourceUpdated, Source: *s})
	}
	subs := append([]func(Event){}, c.subs...)
	c.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, ev := range events {
		for _, sub := range subs {
			sub(ev)
		}
	}
	return nil
}

// Subscribe registers a callback for catalogue events. It returns an
// unsubscribe function.
func (c *SourceCatalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
	idx := len(c.subs) - 1

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < 0 || idx >= len(c.subs) {
			return
		}
		c.subs = append(c.subs[:idx], c.subs[idx+1:]...)
		idx = -1
	}
}
