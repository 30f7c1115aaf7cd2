package audit

import (
	"context"

	id "schooladmin/pkg/domain"
)

// Store persists audit records. There is no update operation: records are
// only ever appended, or removed by retention and single administrative
// deletes.
//
// Implementations return sentinel.ErrNotFound for missing records and must be
// safe for concurrent use.
type Store interface {
	Append(ctx context.Context, entry Entry) (*Record, error)
	Get(ctx context.Context, recordID id.AuditRecordID) (*Record, error)
	// Find returns matching records newest-first.
	Find(ctx context.Context, filter Filter, page Page) ([]Record, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// TopN groups matching records by dim and returns the n largest groups,
	// ordered by descending count. Records with an empty key are skipped.
	TopN(ctx context.Context, dim Dimension, filter Filter, n int) ([]Bucket, error)
	DeleteWhere(ctx context.Context, filter Filter) (int64, error)
	Delete(ctx context.Context, recordID id.AuditRecordID) error
}
