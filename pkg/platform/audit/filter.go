package audit

import "strings"

// Matches evaluates the filter against a record in memory. SQL-backed stores
// translate the same predicates into WHERE clauses.
func (f Filter) Matches(r Record) bool {
	if f.ActorID != nil && (r.ActorID == nil || *r.ActorID != *f.ActorID) {
		return false
	}
	if f.TenantID != nil && (r.TenantID == nil || *r.TenantID != *f.TenantID) {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Resource != "" && r.Resource != f.Resource {
		return false
	}
	if f.Method != "" && !strings.EqualFold(r.HTTPMethod, f.Method) {
		return false
	}
	if f.StatusCode != 0 && r.StatusCode != f.StatusCode {
		return false
	}
	if f.StatusMin != 0 && r.StatusCode < f.StatusMin {
		return false
	}
	if f.StatusMax != 0 && r.StatusCode > f.StatusMax {
		return false
	}
	if f.ErrorsOnly && !r.IsError() {
		return false
	}
	if f.Search != "" && !matchesSearch(r, f.Search) {
		return false
	}
	if f.From != nil && r.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && r.CreatedAt.After(*f.To) {
		return false
	}
	if f.Before != nil && !r.CreatedAt.Before(*f.Before) {
		return false
	}
	return true
}

func matchesSearch(r Record, term string) bool {
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(r.Action), term) ||
		strings.Contains(strings.ToLower(r.Resource), term) ||
		strings.Contains(strings.ToLower(r.Endpoint), term)
}

// Key returns the grouping key of a record for the given dimension.
func (d Dimension) Key(r Record) string {
	switch d {
	case DimensionAction:
		return r.Action
	case DimensionResource:
		return r.Resource
	case DimensionActor:
		if r.ActorID == nil {
			return ""
		}
		return r.ActorID.String()
	default:
		return ""
	}
}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case DimensionAction, DimensionResource, DimensionActor:
		return true
	}
	return false
}
