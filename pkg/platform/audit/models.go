package audit

import (
	"time"

	id "schooladmin/pkg/domain"
)

// Entry is everything a producer knows about an auditable action. The store
// turns it into a Record by assigning the id and write timestamp.
type Entry struct {
	ActorID    *id.UserID
	TenantID   *id.TenantID
	Action     string
	Resource   string
	ResourceID string
	HTTPMethod string
	Endpoint   string
	StatusCode int
	IPAddress  string
	UserAgent  string
	DurationMs int64
	// Error is set only for responses with StatusCode >= 400.
	Error    string
	Metadata map[string]any
}

// Record is a persisted, immutable audit entry.
type Record struct {
	ID         id.AuditRecordID `json:"id"`
	ActorID    *id.UserID       `json:"actor,omitempty"`
	TenantID   *id.TenantID     `json:"tenant,omitempty"`
	Action     string           `json:"action"`
	Resource   string           `json:"resource"`
	ResourceID string           `json:"resourceId,omitempty"`
	HTTPMethod string           `json:"httpMethod,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
	StatusCode int              `json:"statusCode"`
	IPAddress  string           `json:"ipAddress,omitempty"`
	UserAgent  string           `json:"userAgent,omitempty"`
	DurationMs int64            `json:"durationMs"`
	Error      string           `json:"error,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// NewRecord stamps an entry with identity and creation time.
func NewRecord(e Entry, recordID id.AuditRecordID, createdAt time.Time) Record {
	return Record{
		ID:         recordID,
		ActorID:    e.ActorID,
		TenantID:   e.TenantID,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		HTTPMethod: e.HTTPMethod,
		Endpoint:   e.Endpoint,
		StatusCode: e.StatusCode,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		DurationMs: e.DurationMs,
		Error:      e.Error,
		Metadata:   e.Metadata,
		CreatedAt:  createdAt,
	}
}

// IsError reports whether the record captured a failed response.
func (r Record) IsError() bool { return r.StatusCode >= 400 }

// Filter narrows queries and deletions. Zero-valued fields do not constrain.
type Filter struct {
	ActorID    *id.UserID
	TenantID   *id.TenantID
	Action     string
	Resource   string
	Method     string
	StatusCode int
	StatusMin  int
	StatusMax  int
	ErrorsOnly bool
	// Search is a case-insensitive substring match over action, resource and endpoint.
	Search string
	// From and To bound CreatedAt inclusively.
	From *time.Time
	To   *time.Time
	// Before bounds CreatedAt exclusively; used by retention.
	Before *time.Time
}

// IsEmpty reports whether the filter matches every record.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Page selects a window of a newest-first result set.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the number of records preceding the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// Dimension is a groupable record attribute for top-N aggregation.
type Dimension string

const (
	DimensionAction   Dimension = "action"
	DimensionResource Dimension = "resource"
	DimensionActor    Dimension = "actor"
)

// Bucket is one group of an aggregation.
type Bucket struct {
	Key   string
	Count int64
}
