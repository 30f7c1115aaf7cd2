package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/sentinel"
)

// InMemoryStore keeps records in insertion order. Used when no database is
// configured and in tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []audit.Record
	now     func() time.Time
}

// Option configures the store.
type Option func(*InMemoryStore)

// WithClock overrides the timestamp source for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.now = now
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) (*audit.Record, error) {
	rec := audit.NewRecord(entry, id.NewAuditRecordID(), s.now().UTC())
	rec.Metadata = copyMetadata(entry.Metadata)

	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()

	out := rec
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, recordID id.AuditRecordID) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.records {
		if s.records[i].ID == recordID {
			out := s.records[i]
			return &out, nil
		}
	}
	return nil, fmt.Errorf("audit record %s: %w", recordID, sentinel.ErrNotFound)
}

// Find returns matching records newest-first; equal timestamps keep reverse
// insertion order so pages never overlap.
func (s *InMemoryStore) Find(_ context.Context, filter audit.Filter, page audit.Page) ([]audit.Record, error) {
	matched := s.newestFirst(filter)

	offset := page.Offset()
	if offset >= len(matched) {
		return []audit.Record{}, nil
	}
	end := len(matched)
	if page.Limit > 0 && offset+page.Limit < end {
		end = offset + page.Limit
	}
	return matched[offset:end], nil
}

func (s *InMemoryStore) Count(_ context.Context, filter audit.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for i := range s.records {
		if filter.Matches(s.records[i]) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) TopN(_ context.Context, dim audit.Dimension, filter audit.Filter, n int) ([]audit.Bucket, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	s.mu.RLock()
	counts := make(map[string]int64)
	var order []string
	for i := range s.records {
		if !filter.Matches(s.records[i]) {
			continue
		}
		key := dim.Key(s.records[i])
		if key == "" {
			continue
		}
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	s.mu.RUnlock()

	buckets := make([]audit.Bucket, 0, len(order))
	for _, key := range order {
		buckets = append(buckets, audit.Bucket{Key: key, Count: counts[key]})
	}
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].Count > buckets[j].Count })
	if n > 0 && len(buckets) > n {
		buckets = buckets[:n]
	}
	return buckets, nil
}

func (s *InMemoryStore) DeleteWhere(_ context.Context, filter audit.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var deleted int64
	for _, rec := range s.records {
		if filter.Matches(rec) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (s *InMemoryStore) Delete(_ context.Context, recordID id.AuditRecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == recordID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("audit record %s: %w", recordID, sentinel.ErrNotFound)
}

func (s *InMemoryStore) newestFirst(filter audit.Filter) []audit.Record {
	s.mu.RLock()
	matched := make([]audit.Record, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if filter.Matches(s.records[i]) {
			matched = append(matched, s.records[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
