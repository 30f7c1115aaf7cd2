package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/sentinel"
)

// Store implements audit.Store on the audit_records table.
// The seq column is a BIGSERIAL used only to keep newest-first order stable
// between records written in the same instant.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source for created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const selectColumns = `
	id, actor_id, tenant_id, action, resource, resource_id, http_method,
	endpoint, status_code, ip_address, user_agent, duration_ms, error,
	metadata, created_at`

// Append inserts a new record. The id and created_at are assigned here.
func (s *Store) Append(ctx context.Context, entry audit.Entry) (*audit.Record, error) {
	rec := audit.NewRecord(entry, id.NewAuditRecordID(), s.now().UTC().Truncate(time.Microsecond))

	var metadata any
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = b
	}

	query := `
		INSERT INTO audit_records (
			id, actor_id, tenant_id, action, resource, resource_id, http_method,
			endpoint, status_code, ip_address, user_agent, duration_ms, error,
			metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(rec.ID),
		nullableUUID(rec.ActorID),
		nullableTenant(rec.TenantID),
		rec.Action,
		rec.Resource,
		rec.ResourceID,
		rec.HTTPMethod,
		rec.Endpoint,
		rec.StatusCode,
		rec.IPAddress,
		rec.UserAgent,
		rec.DurationMs,
		nullableString(rec.Error),
		metadata,
		rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	return &rec, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, recordID id.AuditRecordID) (*audit.Record, error) {
	query := `SELECT` + selectColumns + ` FROM audit_records WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(recordID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit record %s: %w", recordID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Find returns matching records newest-first.
func (s *Store) Find(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Record, error) {
	where, args := buildWhere(filter)
	query := `SELECT` + selectColumns + ` FROM audit_records` + where + ` ORDER BY created_at DESC, seq DESC`
	if page.Limit > 0 {
		args = append(args, page.Limit, page.Offset())
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	records := []audit.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// Count returns the number of matching records.
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	where, args := buildWhere(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// TopN groups by the dimension column; ties keep first-insertion order.
func (s *Store) TopN(ctx context.Context, dim audit.Dimension, filter audit.Filter, n int) ([]audit.Bucket, error) {
	var keyExpr, present string
	switch dim {
	case audit.DimensionAction:
		keyExpr, present = "action", "action <> ''"
	case audit.DimensionResource:
		keyExpr, present = "resource", "resource <> ''"
	case audit.DimensionActor:
		keyExpr, present = "actor_id::text", "actor_id IS NOT NULL"
	default:
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	where, args := buildWhere(filter)
	if where == "" {
		where = " WHERE " + present
	} else {
		where += " AND " + present
	}
	query := `SELECT ` + keyExpr + `, COUNT(*) AS n FROM audit_records` + where +
		` GROUP BY ` + keyExpr + ` ORDER BY n DESC, MIN(seq) ASC`
	if n > 0 {
		args = append(args, n)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate audit records by %s: %w", dim, err)
	}
	defer rows.Close()

	buckets := []audit.Bucket{}
	for rows.Next() {
		var b audit.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scan audit bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit buckets: %w", err)
	}
	return buckets, nil
}

// DeleteWhere removes every matching record and returns the count.
func (s *Store) DeleteWhere(ctx context.Context, filter audit.Filter) (int64, error) {
	where, args := buildWhere(filter)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete audit records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit records rows affected: %w", err)
	}
	return n, nil
}

// Delete removes one record.
func (s *Store) Delete(ctx context.Context, recordID id.AuditRecordID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE id = $1`, uuid.UUID(recordID))
	if err != nil {
		return fmt.Errorf("delete audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete audit record rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("audit record %s: %w", recordID, sentinel.ErrNotFound)
	}
	return nil
}

// buildWhere renders the filter as a WHERE clause with positional args.
func buildWhere(f audit.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if f.ActorID != nil {
		add("actor_id = ?", uuid.UUID(*f.ActorID))
	}
	if f.TenantID != nil {
		add("tenant_id = ?", uuid.UUID(*f.TenantID))
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.Resource != "" {
		add("resource = ?", f.Resource)
	}
	if f.Method != "" {
		add("http_method = ?", strings.ToUpper(f.Method))
	}
	if f.StatusCode != 0 {
		add("status_code = ?", f.StatusCode)
	}
	if f.StatusMin != 0 {
		add("status_code >= ?", f.StatusMin)
	}
	if f.StatusMax != 0 {
		add("status_code <= ?", f.StatusMax)
	}
	if f.ErrorsOnly {
		conds = append(conds, "status_code >= 400")
	}
	if f.Search != "" {
		add("(action ILIKE ? OR resource ILIKE ? OR endpoint ILIKE ?)", "%"+escapeLike(f.Search)+"%")
	}
	if f.From != nil {
		add("created_at >= ?", *f.From)
	}
	if f.To != nil {
		add("created_at <= ?", *f.To)
	}
	if f.Before != nil {
		add("created_at < ?", *f.Before)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*audit.Record, error) {
	var (
		rec      audit.Record
		recID    uuid.UUID
		actorID  *uuid.UUID
		tenantID *uuid.UUID
		errMsg   sql.NullString
		metadata []byte
	)
	err := row.Scan(
		&recID,
		&actorID,
		&tenantID,
		&rec.Action,
		&rec.Resource,
		&rec.ResourceID,
		&rec.HTTPMethod,
		&rec.Endpoint,
		&rec.StatusCode,
		&rec.IPAddress,
		&rec.UserAgent,
		&rec.DurationMs,
		&errMsg,
		&metadata,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan audit record: %w", err)
	}

	rec.ID = id.AuditRecordID(recID)
	if actorID != nil {
		a := id.UserID(*actorID)
		rec.ActorID = &a
	}
	if tenantID != nil {
		t := id.TenantID(*tenantID)
		rec.TenantID = &t
	}
	rec.Error = errMsg.String
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata: %w", err)
		}
	}
	return &rec, nil
}

func nullableUUID(v *id.UserID) any {
	if v == nil {
		return nil
	}
	return uuid.UUID(*v)
}

func nullableTenant(v *id.TenantID) any {
	if v == nil {
		return nil
	}
	return uuid.UUID(*v)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
