package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"schooladmin/internal/audit/service"
	id "schooladmin/pkg/domain"
	dErrors "schooladmin/pkg/domain-errors"
	audit "schooladmin/pkg/platform/audit"
)

const (
	dateLayout     = "2006-01-02"
	maxSearchChars = 200
)

// ParseRecordID reads the {id} path segment. An id that cannot name a record
// is reported the same way as one that names no record.
func ParseRecordID(raw string) (id.AuditRecordID, error) {
	recordID, err := id.ParseAuditRecordID(raw)
	if err != nil {
		return recordID, dErrors.New(dErrors.CodeNotFound, "audit record not found")
	}
	return recordID, nil
}

// ListRequest is the parsed query of GET /audit-logs and /audit-logs/me.
// Keys it does not know about are ignored.
type ListRequest struct {
	Filter audit.Filter
	Page   audit.Page
}

// ParseListRequest reads filters and paging from query values.
func ParseListRequest(q url.Values) (*ListRequest, error) {
	req := &ListRequest{}
	var err error

	if req.Page.Number, err = intParam(q, "page"); err != nil {
		return nil, err
	}
	if req.Page.Limit, err = intParam(q, "limit"); err != nil {
		return nil, err
	}

	f := &req.Filter
	if v := strings.TrimSpace(q.Get("actor")); v != "" {
		actor, err := id.ParseUserID(v)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "actor must be a user id")
		}
		f.ActorID = &actor
	}
	if v := strings.TrimSpace(q.Get("tenant")); v != "" {
		tenant, err := id.ParseTenantID(v)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "tenant must be a tenant id")
		}
		f.TenantID = &tenant
	}
	f.Action = strings.TrimSpace(q.Get("action"))
	f.Resource = strings.TrimSpace(q.Get("resource"))
	f.Method = strings.ToUpper(strings.TrimSpace(q.Get("method")))

	if f.StatusCode, err = statusParam(q, "status"); err != nil {
		return nil, err
	}
	if f.StatusMin, err = statusParam(q, "statusMin"); err != nil {
		return nil, err
	}
	if f.StatusMax, err = statusParam(q, "statusMax"); err != nil {
		return nil, err
	}
	if f.StatusMin != 0 && f.StatusMax != 0 && f.StatusMin > f.StatusMax {
		return nil, dErrors.New(dErrors.CodeBadRequest, "statusMin must not exceed statusMax")
	}

	if v := strings.TrimSpace(q.Get("errorsOnly")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "errorsOnly must be true or false")
		}
		f.ErrorsOnly = b
	}

	f.Search = strings.TrimSpace(q.Get("search"))
	if len(f.Search) > maxSearchChars {
		return nil, dErrors.New(dErrors.CodeBadRequest, "search must be at most 200 characters")
	}

	if f.From, f.To, err = parseRange(q); err != nil {
		return nil, err
	}
	return req, nil
}

// StatsRequest is the parsed query of GET /audit-logs/stats.
type StatsRequest struct {
	From *time.Time
	To   *time.Time
}

func ParseStatsRequest(q url.Values) (*StatsRequest, error) {
	from, to, err := parseRange(q)
	if err != nil {
		return nil, err
	}
	return &StatsRequest{From: from, To: to}, nil
}

// ParsePurgeDays reads the retention window, defaulting to a year.
func ParsePurgeDays(q url.Values) (int, error) {
	v := strings.TrimSpace(q.Get("days"))
	if v == "" {
		return service.DefaultRetentionDays, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "days must be a non-negative integer")
	}
	return days, nil
}

func parseRange(q url.Values) (from, to *time.Time, err error) {
	if from, err = timeParam(q, "from", false); err != nil {
		return nil, nil, err
	}
	if to, err = timeParam(q, "to", true); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, dErrors.New(dErrors.CodeBadRequest, "from must not be after to")
	}
	return from, to, nil
}

// timeParam accepts RFC 3339 or a bare date. A bare "to" date covers the
// whole day.
func timeParam(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, key+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func intParam(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an integer")
	}
	return n, nil
}

func statusParam(q url.Values, key string) (int, error) {
	n, err := intParam(q, key)
	if err != nil {
		return 0, err
	}
	if n != 0 && (n < 100 || n > 599) {
		return 0, dErrors.New(dErrors.CodeBadRequest, key+" must be an HTTP status code")
	}
	return n, nil
}
