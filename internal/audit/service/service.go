// Package service implements querying, reporting and retention over the
// audit trail.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"schooladmin/internal/audit/metrics"
	id "schooladmin/pkg/domain"
	dErrors "schooladmin/pkg/domain-errors"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/sentinel"
	"schooladmin/pkg/requestcontext"
)

const (
	DefaultLimit         = 50
	MaxLimit             = 200
	DefaultRetentionDays = 365
	topN                 = 10
	unknownName          = "Unknown"
)

// NameResolver turns actor ids into display names in one batch.
// Ids missing from the returned map are rendered as unknown.
type NameResolver interface {
	ResolveNames(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error)
}

// Service answers administrative questions about the audit trail.
type Service struct {
	store   audit.Store
	names   NameResolver
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithNameResolver sets the directory lookup used by Stats.
func WithNameResolver(r NameResolver) Option {
	return func(s *Service) { s.names = r }
}

func New(store audit.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		tracer: noop.NewTracerProvider().Tracer("schooladmin/audit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int
	Limit int
	Total int64
	Pages int
}

// ListResult is a page of records, newest first.
type ListResult struct {
	Records    []audit.Record
	Pagination Pagination
}

// UserCount is an actor bucket with its resolved display name.
type UserCount struct {
	UserID id.UserID
	Name   string
	Count  int64
}

// Stats summarises the audit trail over a time range.
type Stats struct {
	TotalLogs    int64
	ErrorLogs    int64
	SuccessRate  string
	TopActions   []audit.Bucket
	TopResources []audit.Bucket
	TopUsers     []UserCount
}

// PurgeResult reports a retention purge.
type PurgeResult struct {
	DeletedCount int64
	Cutoff       time.Time
}

// NormalizePage applies the default limit, caps it and clamps the page
// number to 1.
func NormalizePage(p audit.Page) audit.Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// List returns records matching filter for an administrative caller.
func (s *Service) List(ctx context.Context, filter audit.Filter, page audit.Page) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "audit.List")
	defer span.End()

	filter, err := s.scopeAdmin(ctx, filter)
	if err != nil {
		return nil, fail(span, err)
	}
	res, err := s.list(ctx, "list", filter, page)
	if err != nil {
		return nil, fail(span, err)
	}
	return res, nil
}

// ListMine returns the caller's own records. Any actor filter supplied is
// replaced by the caller.
func (s *Service) ListMine(ctx context.Context, filter audit.Filter, page audit.Page) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "audit.ListMine")
	defer span.End()

	caller, ok := requestcontext.Identity(ctx)
	if !ok || !caller.HasUser() {
		return nil, fail(span, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
	}
	actor := caller.UserID
	filter.ActorID = &actor
	span.SetAttributes(attribute.String("audit.actor", actor.String()))

	res, err := s.list(ctx, "list_mine", filter, page)
	if err != nil {
		return nil, fail(span, err)
	}
	return res, nil
}

func (s *Service) list(ctx context.Context, op string, filter audit.Filter, page audit.Page) (*ListResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveQueryLatency(op, time.Since(start)) }()

	page = NormalizePage(page)

	var (
		records []audit.Record
		total   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = s.store.Find(gctx, filter, page)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "audit query failed", "operation", op, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit records")
	}
	if records == nil {
		records = []audit.Record{}
	}

	return &ListResult{
		Records: records,
		Pagination: Pagination{
			Page:  page.Number,
			Limit: page.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(page.Limit))),
		},
	}, nil
}

// Get returns one record. Records outside a tenant admin's tenant are
// reported as not found.
func (s *Service) Get(ctx context.Context, recordID id.AuditRecordID) (*audit.Record, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Get")
	defer span.End()
	span.SetAttributes(attribute.String("audit.record_id", recordID.String()))

	scope, err := s.scopeAdmin(ctx, audit.Filter{})
	if err != nil {
		return nil, fail(span, err)
	}
	rec, err := s.lookup(ctx, recordID, scope)
	if err != nil {
		return nil, fail(span, err)
	}
	return rec, nil
}

// Delete removes a single record.
func (s *Service) Delete(ctx context.Context, recordID id.AuditRecordID) error {
	ctx, span := s.tracer.Start(ctx, "audit.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("audit.record_id", recordID.String()))

	scope, err := s.scopeAdmin(ctx, audit.Filter{})
	if err != nil {
		return fail(span, err)
	}
	if scope.TenantID != nil {
		if _, err := s.lookup(ctx, recordID, scope); err != nil {
			return fail(span, err)
		}
	}
	if err := s.store.Delete(ctx, recordID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fail(span, dErrors.New(dErrors.CodeNotFound, "audit record not found"))
		}
		s.logger.ErrorContext(ctx, "audit record delete failed", "record_id", recordID, "error", err)
		return fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete audit record"))
	}
	s.logger.InfoContext(ctx, "audit record deleted",
		"record_id", recordID,
		"actor", requestcontext.UserID(ctx),
	)
	return nil
}

func (s *Service) lookup(ctx context.Context, recordID id.AuditRecordID, scope audit.Filter) (*audit.Record, error) {
	rec, err := s.store.Get(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit record not found")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "audit record lookup failed", "record_id", recordID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit record")
	}
	if scope.TenantID != nil && (rec.TenantID == nil || *rec.TenantID != *scope.TenantID) {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit record not found")
	}
	return rec, nil
}

// Stats aggregates totals and top-10 rankings over an optional created-at
// range. Actor names are resolved in one batch after ranking.
func (s *Service) Stats(ctx context.Context, from, to *time.Time) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Stats")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveQueryLatency("stats", time.Since(start)) }()

	filter, err := s.scopeAdmin(ctx, audit.Filter{From: from, To: to})
	if err != nil {
		return nil, fail(span, err)
	}
	errFilter := filter
	errFilter.ErrorsOnly = true

	var (
		stats Stats
		users []audit.Bucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats.TotalLogs, err = s.store.Count(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		stats.ErrorLogs, err = s.store.Count(gctx, errFilter)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TopActions, err = s.store.TopN(gctx, audit.DimensionAction, filter, topN)
		return err
	})
	g.Go(func() error {
		var err error
		stats.TopResources, err = s.store.TopN(gctx, audit.DimensionResource, filter, topN)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.store.TopN(gctx, audit.DimensionActor, filter, topN)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "audit statistics failed", "error", err)
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute audit statistics"))
	}

	stats.SuccessRate = SuccessRate(stats.TotalLogs, stats.ErrorLogs)
	stats.TopUsers = s.resolveUsers(ctx, users)
	if stats.TopActions == nil {
		stats.TopActions = []audit.Bucket{}
	}
	if stats.TopResources == nil {
		stats.TopResources = []audit.Bucket{}
	}
	span.SetAttributes(
		attribute.Int64("audit.total", stats.TotalLogs),
		attribute.Int64("audit.errors", stats.ErrorLogs),
	)
	return &stats, nil
}

// SuccessRate renders (total-errors)/total as a percentage with two
// decimals. An empty trail reports "100.00".
func SuccessRate(total, errs int64) string {
	if total == 0 {
		return "100.00"
	}
	return fmt.Sprintf("%.2f", float64(total-errs)/float64(total)*100)
}

func (s *Service) resolveUsers(ctx context.Context, buckets []audit.Bucket) []UserCount {
	out := make([]UserCount, 0, len(buckets))
	ids := make([]id.UserID, 0, len(buckets))
	for _, b := range buckets {
		uid, err := id.ParseUserID(b.Key)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping malformed actor bucket", "key", b.Key)
			continue
		}
		ids = append(ids, uid)
		out = append(out, UserCount{UserID: uid, Count: b.Count})
	}

	var names map[id.UserID]string
	if s.names != nil && len(ids) > 0 {
		var err error
		names, err = s.names.ResolveNames(ctx, ids)
		if err != nil {
			s.logger.WarnContext(ctx, "actor name resolution failed", "error", err)
		}
	}
	for i := range out {
		if name := names[out[i].UserID]; name != "" {
			out[i].Name = name
		} else {
			out[i].Name = unknownName
		}
	}
	return out
}

// Purge deletes records created more than days before now and reports the
// cutoff used.
func (s *Service) Purge(ctx context.Context, days int) (*PurgeResult, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Purge")
	defer span.End()
	span.SetAttributes(attribute.Int("audit.retention_days", days))

	if days < 0 {
		return nil, fail(span, dErrors.New(dErrors.CodeBadRequest, "days must be zero or greater"))
	}
	filter, err := s.scopeAdmin(ctx, audit.Filter{})
	if err != nil {
		return nil, fail(span, err)
	}

	cutoff := requestcontext.Now(ctx).UTC().Add(-time.Duration(days) * 24 * time.Hour)
	filter.Before = &cutoff

	deleted, err := s.store.DeleteWhere(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit purge failed", "cutoff", cutoff, "error", err)
		return nil, fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge audit records"))
	}
	s.metrics.AddPurged(deleted)
	s.logger.InfoContext(ctx, "audit records purged",
		"deleted", deleted,
		"cutoff", cutoff,
		"days", days,
		"actor", requestcontext.UserID(ctx),
	)
	span.SetAttributes(attribute.Int64("audit.deleted", deleted))
	return &PurgeResult{DeletedCount: deleted, Cutoff: cutoff}, nil
}

// scopeAdmin requires an elevated caller and confines tenant admins to their
// own tenant by overriding any tenant filter supplied. An admin token that
// carries no tenant is global, like super_admin.
func (s *Service) scopeAdmin(ctx context.Context, filter audit.Filter) (audit.Filter, error) {
	caller, ok := requestcontext.Identity(ctx)
	if !ok {
		return filter, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !caller.Role.IsElevated() {
		s.logger.WarnContext(ctx, "audit access denied",
			"user_id", caller.UserID,
			"role", caller.Role,
		)
		return filter, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	if caller.Role.IsGlobal() || caller.TenantID == nil {
		return filter, nil
	}
	tenant := *caller.TenantID
	filter.TenantID = &tenant
	return filter, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}
