package classifier

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	uuidPattern     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericPattern  = regexp.MustCompile(`^[0-9]+$`)
	// opaque tokens: long, url-safe, and containing at least one digit
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)
)

// LooksLikeID reports whether a path segment is an opaque identifier rather
// than a route word.
func LooksLikeID(segment string) bool {
	switch {
	case segment == "":
		return false
	case objectIDPattern.MatchString(segment), uuidPattern.MatchString(segment), numericPattern.MatchString(segment):
		return true
	case tokenPattern.MatchString(segment):
		return strings.ContainsAny(segment, "0123456789")
	default:
		return false
	}
}

// NormalizePath collapses a concrete request path into its routing key by
// dropping the query string, the trailing slash and every identifier segment:
//
//	/students/65a1f0c2e4b0a1b2c3d4e5f6         -> /students
//	/expenses/65a1f0c2e4b0a1b2c3d4e5f6/approve -> /expenses/approve
func NormalizePath(path string) string {
	path = stripQuery(path)
	segments := strings.Split(path, "/")
	kept := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" || LooksLikeID(seg) {
			continue
		}
		kept = append(kept, seg)
	}
	return "/" + strings.Join(kept, "/")
}

// ResourceID extracts the instance identifier a request targets, best effort:
// the first identifier-like path segment, then an id field of the JSON body,
// then the "id" route parameter.
func ResourceID(path string, body []byte, params map[string]string) string {
	for _, seg := range strings.Split(stripQuery(path), "/") {
		if LooksLikeID(seg) {
			return seg
		}
	}
	if v := bodyID(body); v != "" {
		return v
	}
	if v := params["id"]; v != "" {
		return v
	}
	return ""
}

func bodyID(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range []string{"id", "_id"} {
		if v := scalarString(doc[key]); v != "" {
			return v
		}
	}
	// envelope responses: {"data": {"id": ...}}
	if raw, ok := doc["data"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err == nil {
			for _, key := range []string{"id", "_id"} {
				if v := scalarString(inner[key]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
