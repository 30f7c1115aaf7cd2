package memory

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	clock time.Time
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	s.clock = s.now
	s.store = NewInMemoryStore(WithClock(func() time.Time { return s.clock }))
}

func (s *InMemoryStoreSuite) appendAt(at time.Time, e audit.Entry) *audit.Record {
	s.clock = at
	rec, err := s.store.Append(s.ctx, e)
	s.Require().NoError(err)
	return rec
}

func (s *InMemoryStoreSuite) TestAppendAssignsIdentity() {
	rec := s.appendAt(s.now, audit.Entry{Action: "create_student", Resource: "Student", StatusCode: 201})

	s.False(rec.ID.IsNil())
	s.Equal(s.now, rec.CreatedAt)

	got, err := s.store.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(*rec, *got)
}

func (s *InMemoryStoreSuite) TestGetMissingReturnsNotFound() {
	_, err := s.store.Get(s.ctx, id.NewAuditRecordID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestFilters() {
	actor := id.UserID(uuid.New())
	tenant := id.TenantID(uuid.New())
	s.appendAt(s.now.Add(-3*time.Hour), audit.Entry{ActorID: &actor, TenantID: &tenant, Action: "create_student", Resource: "Student", HTTPMethod: "POST", Endpoint: "/students", StatusCode: 201})
	s.appendAt(s.now.Add(-2*time.Hour), audit.Entry{Action: "update_grade", Resource: "Grade", HTTPMethod: "PUT", Endpoint: "/grades/1", StatusCode: 404})
	s.appendAt(s.now.Add(-1*time.Hour), audit.Entry{ActorID: &actor, Action: "delete_invoice", Resource: "Invoice", HTTPMethod: "DELETE", Endpoint: "/invoices/9", StatusCode: 500})

	from := s.now.Add(-150 * time.Minute)
	tests := []struct {
		name   string
		filter audit.Filter
		want   int64
	}{
		{"empty", audit.Filter{}, 3},
		{"actor", audit.Filter{ActorID: &actor}, 2},
		{"tenant", audit.Filter{TenantID: &tenant}, 1},
		{"action", audit.Filter{Action: "update_grade"}, 1},
		{"method case-insensitive", audit.Filter{Method: "delete"}, 1},
		{"exact status", audit.Filter{StatusCode: 201}, 1},
		{"status range", audit.Filter{StatusMin: 400, StatusMax: 499}, 1},
		{"errors only", audit.Filter{ErrorsOnly: true}, 2},
		{"search endpoint", audit.Filter{Search: "INVOICES"}, 1},
		{"search resource", audit.Filter{Search: "grade"}, 1},
		{"from", audit.Filter{From: &from}, 2},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			n, err := s.store.Count(s.ctx, tt.filter)
			s.Require().NoError(err)
			s.Equal(tt.want, n)

			recs, err := s.store.Find(s.ctx, tt.filter, audit.Page{Number: 1, Limit: 50})
			s.Require().NoError(err)
			s.Len(recs, int(tt.want))
			for _, r := range recs {
				s.True(tt.filter.Matches(r))
			}
		})
	}
}

func (s *InMemoryStoreSuite) TestPaginationCoversEveryRecordOnceNewestFirst() {
	base := s.now.Add(-time.Hour)
	for i := range 23 {
		// pairs share a timestamp to exercise the tie-break
		s.appendAt(base.Add(time.Duration(i/2)*time.Minute), audit.Entry{Action: fmt.Sprintf("a%d", i), Resource: "Student"})
	}

	total, err := s.store.Count(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	limit := 5
	pages := int(math.Ceil(float64(total) / float64(limit)))
	s.Equal(5, pages)

	seen := map[id.AuditRecordID]bool{}
	var all []audit.Record
	for p := 1; p <= pages; p++ {
		recs, err := s.store.Find(s.ctx, audit.Filter{}, audit.Page{Number: p, Limit: limit})
		s.Require().NoError(err)
		for _, r := range recs {
			s.False(seen[r.ID], "duplicate record across pages")
			seen[r.ID] = true
		}
		all = append(all, recs...)
	}
	s.Len(all, int(total))
	for i := 1; i < len(all); i++ {
		s.False(all[i].CreatedAt.After(all[i-1].CreatedAt), "records must be newest-first")
	}
	s.Equal("a22", all[0].Action)

	beyond, err := s.store.Find(s.ctx, audit.Filter{}, audit.Page{Number: pages + 1, Limit: limit})
	s.Require().NoError(err)
	s.Empty(beyond)
}

func (s *InMemoryStoreSuite) TestTopN() {
	for range 3 {
		s.appendAt(s.now, audit.Entry{Action: "create_student", Resource: "Student"})
	}
	s.appendAt(s.now, audit.Entry{Action: "login", Resource: "Auth"})
	for range 2 {
		s.appendAt(s.now, audit.Entry{Action: "update_grade", Resource: "Grade"})
	}

	buckets, err := s.store.TopN(s.ctx, audit.DimensionAction, audit.Filter{}, 2)
	s.Require().NoError(err)
	s.Equal([]audit.Bucket{{Key: "create_student", Count: 3}, {Key: "update_grade", Count: 2}}, buckets)

	actors, err := s.store.TopN(s.ctx, audit.DimensionActor, audit.Filter{}, 10)
	s.Require().NoError(err)
	s.Empty(actors, "records without an actor are not grouped")

	_, err = s.store.TopN(s.ctx, audit.Dimension("endpoint"), audit.Filter{}, 10)
	s.Error(err)
}

func (s *InMemoryStoreSuite) TestDeleteWhereBefore() {
	old := s.appendAt(s.now.AddDate(0, 0, -400), audit.Entry{Action: "old"})
	recent := s.appendAt(s.now.AddDate(0, 0, -1), audit.Entry{Action: "recent"})
	cutoff := s.now.AddDate(0, 0, -365)
	// exactly at the cutoff is kept
	edge := s.appendAt(cutoff, audit.Entry{Action: "edge"})

	deleted, err := s.store.DeleteWhere(s.ctx, audit.Filter{Before: &cutoff})
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	_, err = s.store.Get(s.ctx, old.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	for _, keep := range []*audit.Record{recent, edge} {
		_, err = s.store.Get(s.ctx, keep.ID)
		s.NoError(err)
	}
}

func (s *InMemoryStoreSuite) TestDelete() {
	rec := s.appendAt(s.now, audit.Entry{Action: "create_loan"})
	s.Require().NoError(s.store.Delete(s.ctx, rec.ID))
	s.ErrorIs(s.store.Delete(s.ctx, rec.ID), sentinel.ErrNotFound)
}

func TestAppendCopiesMetadata(t *testing.T) {
	store := NewInMemoryStore()
	meta := map[string]any{"query": map[string]string{"page": "1"}}
	rec, err := store.Append(context.Background(), audit.Entry{Action: "x", Metadata: meta})
	require.NoError(t, err)

	meta["injected"] = true
	got, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Metadata, "injected")
}
