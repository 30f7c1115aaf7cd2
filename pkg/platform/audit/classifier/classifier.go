// Package classifier decides from method and path alone whether a request is
// an auditable administrative action, and names it.
//
// Classification is two-tier. A request is first looked up by its normalized
// key (method plus the path with identifier segments removed); rules that
// need to tell sub-paths apart ("approve" vs "create") match here. Failing
// that, a coarse rule declared on a resource root matches any path below it;
// when several roots match, the longest one wins so declaration order never
// changes the outcome.
package classifier

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Rule maps a method and path to an (action, resource) pair.
type Rule struct {
	Method   string `koanf:"method" yaml:"method"`
	Path     string `koanf:"path" yaml:"path"`
	Action   string `koanf:"action" yaml:"action"`
	Resource string `koanf:"resource" yaml:"resource"`
}

// Match is the outcome of classifying an auditable request.
type Match struct {
	Action   string
	Resource string
	// Exact is false when the match came from the prefix fallback.
	Exact bool
}

// Classifier is immutable once built and safe for concurrent use.
type Classifier struct {
	exact    map[string]Rule
	prefixes map[string][]Rule // by method, longest path first
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// New validates the rule table and builds a classifier from it.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{
		exact:    make(map[string]Rule, len(rules)),
		prefixes: make(map[string][]Rule),
	}
	for i, r := range rules {
		r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
		r.Path = strings.TrimRight(strings.TrimSpace(r.Path), "/")
		if r.Path == "" {
			r.Path = "/"
		}
		if _, ok := allowedMethods[r.Method]; !ok {
			return nil, fmt.Errorf("rule %d: unsupported method %q", i, r.Method)
		}
		if !strings.HasPrefix(r.Path, "/") {
			return nil, fmt.Errorf("rule %d: path %q must start with /", i, r.Path)
		}
		if r.Action == "" || r.Resource == "" {
			return nil, fmt.Errorf("rule %d (%s %s): action and resource are required", i, r.Method, r.Path)
		}
		key := r.Method + " " + r.Path
		if _, dup := c.exact[key]; dup {
			return nil, fmt.Errorf("rule %d: duplicate rule for %s", i, key)
		}
		c.exact[key] = r
		c.prefixes[r.Method] = append(c.prefixes[r.Method], r)
	}
	for m := range c.prefixes {
		sort.SliceStable(c.prefixes[m], func(i, j int) bool {
			return len(c.prefixes[m][i].Path) > len(c.prefixes[m][j].Path)
		})
	}
	return c, nil
}

// MustNew is New for static tables; it panics on an invalid table.
func MustNew(rules []Rule) *Classifier {
	c, err := New(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify reports the auditable action for a request, or false to skip it.
func (c *Classifier) Classify(method, path string) (Match, bool) {
	method = strings.ToUpper(method)
	if r, ok := c.exact[method+" "+NormalizePath(path)]; ok {
		return Match{Action: r.Action, Resource: r.Resource, Exact: true}, true
	}

	raw := stripQuery(path)
	for _, r := range c.prefixes[method] {
		if hasSegmentPrefix(raw, r.Path) {
			return Match{Action: r.Action, Resource: r.Resource}, true
		}
	}
	return Match{}, false
}

// Len returns the number of rules in the table.
func (c *Classifier) Len() int { return len(c.exact) }

// hasSegmentPrefix matches whole segments only, so /expenses does not claim
// /expensesreport.
func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
