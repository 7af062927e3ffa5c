package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ResourceSummary is the read model for one resource's fetch history.
type ResourceSummary struct {
	Resource       string         `json:"resource"`
	LastClass      string         `json:"last_class"`
	LastMessage    string         `json:"last_message,omitempty"`
	LastGeneration uint64         `json:"last_generation"`
	LastAt         time.Time      `json:"last_at"`
	LastSuccessAt  *time.Time     `json:"last_success_at,omitempty"`
	LastFailureAt  *time.Time     `json:"last_failure_at,omitempty"`
	Settled        int            `json:"settled"`
	Counts         map[string]int `json:"counts"`
}

// SummaryProjection folds events into per-resource summaries. It is rebuilt
// from the store at startup and then kept current with Apply.
type SummaryProjection struct {
	mu         sync.RWMutex
	store      Store
	summaries  map[string]*ResourceSummary
	successCls string
	failureCls string
	lastSync   time.Time
}

// NewSummaryProjection creates a projection over store. successClass and
// failureClass name the event classes that update LastSuccessAt and
// LastFailureAt.
func NewSummaryProjection(store Store, successClass, failureClass string) *SummaryProjection {
	return &SummaryProjection{
		store:      store,
		summaries:  make(map[string]*ResourceSummary),
		successCls: successClass,
		failureCls: failureClass,
	}
}

// Rebuild replays every stored event.
func (p *SummaryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.Range(ctx, time.Unix(0, 0), time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = make(map[string]*ResourceSummary)
	for _, e := range events {
		p.applyLocked(e)
	}
	p.lastSync = time.Now()
	return nil
}

// Apply folds a single event into the projection.
func (p *SummaryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *SummaryProjection) applyLocked(e Event) {
	if e.Resource == "" {
		return
	}
	s, ok := p.summaries[e.Resource]
	if !ok {
		s = &ResourceSummary{Resource: e.Resource, Counts: make(map[string]int)}
		p.summaries[e.Resource] = s
	}
	s.Settled++
	s.Counts[e.Class]++
	if e.At.Before(s.LastAt) {
		return
	}
	s.LastClass = e.Class
	s.LastMessage = e.Message
	s.LastGeneration = e.Generation
	s.LastAt = e.At
	at := e.At
	switch e.Class {
	case p.successCls:
		s.LastSuccessAt = &at
	case p.failureCls:
		s.LastFailureAt = &at
	}
}

// Summary returns a copy of resource's summary.
func (p *SummaryProjection) Summary(resource string) (ResourceSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.summaries[resource]
	if !ok {
		return ResourceSummary{}, false
	}
	return copySummary(s), true
}

// Summaries returns copies of every summary sorted by resource name.
func (p *SummaryProjection) Summaries() []ResourceSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ResourceSummary, 0, len(p.summaries))
	for _, s := range p.summaries {
		out = append(out, copySummary(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Resource < out[j].Resource })
	return out
}

// LastSyncTime returns when Rebuild last completed.
func (p *SummaryProjection) LastSyncTime() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSync
}

func copySummary(s *ResourceSummary) ResourceSummary {
	cp := *s
	cp.Counts = make(map[string]int, len(s.Counts))
	for k, v := range s.Counts {
		cp.Counts[k] = v
	}
	return cp
}
