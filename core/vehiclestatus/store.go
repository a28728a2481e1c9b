// Package vehiclestatus holds the latest controller report for readers on
// other goroutines, such as the HTTP status endpoint.
package vehiclestatus

import (
	"sync"

	"github.com/kilianp07/smartcharge/core/charging"
)

// Store keeps the most recent report. It implements charging.StatusPublisher.
type Store interface {
	Publish(r charging.Report)
	Latest() (charging.Report, bool)
}

// MemoryStore is a mutex guarded Store.
type MemoryStore struct {
	mu      sync.RWMutex
	latest  charging.Report
	present bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Publish replaces the stored report. Pointer fields are copied so that
// readers never share memory with the controller goroutine.
func (s *MemoryStore) Publish(r charging.Report) {
	r = clone(r)
	s.mu.Lock()
	s.latest = r
	s.present = true
	s.mu.Unlock()
}

// Latest returns a copy of the last published report.
func (s *MemoryStore) Latest() (charging.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return charging.Report{}, false
	}
	return clone(s.latest), true
}

func clone(r charging.Report) charging.Report {
	if r.Plan != nil {
		p := *r.Plan
		if p.FinishMinute != nil {
			f := *p.FinishMinute
			p.FinishMinute = &f
		}
		if p.ReadyByMinute != nil {
			rb := *p.ReadyByMinute
			p.ReadyByMinute = &rb
		}
		r.Plan = &p
	}
	if r.Session != nil {
		s := *r.Session
		r.Session = &s
	}
	if r.LastSession != nil {
		m := *r.LastSession
		r.LastSession = &m
	}
	return r
}
