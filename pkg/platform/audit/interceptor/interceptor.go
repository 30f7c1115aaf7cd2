// Package interceptor records auditable HTTP requests.
//
// The middleware lets the wrapped handler write its response straight to the
// client. Once the handler returns it copies what it observed and hands it to
// an emitter, which assembles and persists the entry off the request path.
package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/audit/classifier"
	"schooladmin/pkg/requestcontext"
)

const defaultMaxBodyCapture = 64 << 10

// Classifier maps a request to an auditable action.
type Classifier interface {
	Classify(method, path string) (classifier.Match, bool)
}

// Emitter persists entries without blocking the caller. build runs off the
// request goroutine and may fail, in which case nothing is written.
type Emitter interface {
	EmitDeferred(ctx context.Context, build func() (audit.Entry, error))
}

// Interceptor is the audit middleware.
type Interceptor struct {
	classifier Classifier
	emitter    Emitter
	logger     *slog.Logger
	metrics    *Metrics
	maxBody    int
	now        func() time.Time
}

// Option configures the Interceptor.
type Option func(*Interceptor)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) { i.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(i *Interceptor) { i.metrics = m }
}

// WithMaxBodyCapture bounds how much of each request and error response body
// is retained for record assembly.
func WithMaxBodyCapture(n int) Option {
	return func(i *Interceptor) {
		if n > 0 {
			i.maxBody = n
		}
	}
}

// WithClock overrides the clock used to time requests.
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) { i.now = now }
}

func New(c Classifier, emitter Emitter, opts ...Option) *Interceptor {
	i := &Interceptor{
		classifier: c,
		emitter:    emitter,
		logger:     slog.New(slog.DiscardHandler),
		maxBody:    defaultMaxBodyCapture,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Middleware wraps next. Requests that match no rule pass through untouched.
//
// A panicking handler is still audited, as a 500 unless it already wrote a
// status, and the panic is re-raised for the recovery middleware outside.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		match, ok := i.classifier.Classify(r.Method, r.URL.Path)
		if !ok {
			i.metrics.inc(outcomeSkipped)
			next.ServeHTTP(w, r)
			return
		}

		start := i.requestStart(r.Context())
		capture := &responseCapture{limit: i.maxBody}
		var reqBody *bodyTee
		if r.Body != nil && r.Body != http.NoBody {
			reqBody = &bodyTee{ReadCloser: r.Body, limit: i.maxBody}
			r.Body = reqBody
		}

		defer func() {
			if rec := recover(); rec != nil {
				i.record(r, i.observe(r, match, capture, reqBody, start, true))
				panic(rec)
			}
		}()

		next.ServeHTTP(capture.wrap(w), r)

		i.record(r, i.observe(r, match, capture, reqBody, start, false))
	})
}

// requestStart prefers the time the request entered the server, so the
// duration covers the middleware in front of the interceptor too.
func (i *Interceptor) requestStart(ctx context.Context) time.Time {
	if t, ok := requestcontext.RequestTime(ctx); ok {
		return t
	}
	return i.now()
}

// observation is what the request goroutine hands over. Everything in it is
// copied or owned by the interceptor; chi recycles its route context once
// the request returns.
type observation struct {
	match      classifier.Match
	method     string
	path       string
	requestURI string
	rawQuery   string
	userAgent  string
	params     map[string]string
	status     int
	panicked   bool
	errBody    []byte
	reqBody    []byte
	elapsed    time.Duration
}

func (i *Interceptor) observe(r *http.Request, match classifier.Match, capture *responseCapture, reqBody *bodyTee, start time.Time, panicked bool) observation {
	obs := observation{
		match:      match,
		method:     r.Method,
		path:       r.URL.Path,
		requestURI: r.URL.RequestURI(),
		rawQuery:   r.URL.RawQuery,
		userAgent:  r.UserAgent(),
		params:     routeParams(r),
		status:     capture.statusCode(),
		panicked:   panicked,
		errBody:    capture.body.Bytes(),
		elapsed:    i.now().Sub(start),
	}
	if panicked && !capture.wroteHeader {
		obs.status = http.StatusInternalServerError
	}
	if reqBody != nil {
		obs.reqBody = reqBody.buf.Bytes()
	}
	return obs
}

// record hands the observation to the emitter. Entry assembly runs on the
// emitter's goroutine, not the request's.
func (i *Interceptor) record(r *http.Request, obs observation) {
	ctx := r.Context()
	i.emitter.EmitDeferred(ctx, func() (audit.Entry, error) {
		return i.assemble(ctx, obs)
	})
}

func (i *Interceptor) assemble(ctx context.Context, obs observation) (entry audit.Entry, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			i.metrics.inc(outcomeFailed)
			i.logger.ErrorContext(ctx, "audit entry assembly panicked",
				"action", obs.match.Action,
				"panic", fmt.Sprint(rec),
			)
			err = fmt.Errorf("assemble %s entry: %v", obs.match.Action, rec)
		}
	}()

	entry = audit.Entry{
		Action:     obs.match.Action,
		Resource:   obs.match.Resource,
		ResourceID: classifier.ResourceID(obs.path, obs.reqBody, obs.params),
		HTTPMethod: obs.method,
		Endpoint:   obs.requestURI,
		StatusCode: obs.status,
		IPAddress:  requestcontext.ClientIP(ctx),
		UserAgent:  requestcontext.UserAgent(ctx),
		DurationMs: obs.elapsed.Milliseconds(),
	}
	if entry.UserAgent == "" {
		entry.UserAgent = obs.userAgent
	}
	if caller, ok := requestcontext.Identity(ctx); ok {
		if caller.HasUser() {
			actor := caller.UserID
			entry.ActorID = &actor
		}
		if caller.TenantID != nil {
			tenant := *caller.TenantID
			entry.TenantID = &tenant
		}
	}
	switch {
	case obs.status >= http.StatusBadRequest:
		entry.Error = errorMessage(obs.status, obs.errBody)
	case obs.panicked:
		entry.Error = "handler panicked"
	}
	entry.Metadata = metadata(ctx, obs.rawQuery, obs.params, entry.UserAgent)

	i.metrics.inc(outcomeAudited)
	return entry, nil
}

func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for k, key := range rctx.URLParams.Keys {
		if key == "*" || k >= len(rctx.URLParams.Values) {
			continue
		}
		params[key] = rctx.URLParams.Values[k]
	}
	return params
}

func metadata(ctx context.Context, rawQuery string, params map[string]string, userAgent string) map[string]any {
	md := map[string]any{}
	if q, _ := url.ParseQuery(rawQuery); len(q) > 0 {
		query := make(map[string]any, len(q))
		for k, v := range q {
			if len(v) > 0 {
				query[k] = v[0]
			}
		}
		md["query"] = query
	}
	if len(params) > 0 {
		p := make(map[string]any, len(params))
		for k, v := range params {
			p[k] = v
		}
		md["params"] = p
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		md["requestId"] = reqID
	}
	if client := describeClient(userAgent); client != nil {
		md["client"] = client
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// errorMessage pulls a human-readable message out of an error response,
// falling back to the status text when the body has none.
func errorMessage(status int, body []byte) string {
	if msg := structuredError(body); msg != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

func structuredError(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	for _, key := range []string{"error_description", "message"} {
		if s := jsonString(doc[key]); s != "" {
			return s
		}
	}
	raw, ok := doc["error"]
	if !ok {
		return ""
	}
	if s := jsonString(raw); s != "" {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return nested.Message
	}
	return ""
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
