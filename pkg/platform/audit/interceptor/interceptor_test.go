package interceptor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/platform/audit/classifier"
	"schooladmin/pkg/platform/audit/mocks"
	"schooladmin/pkg/platform/audit/publisher"
	"schooladmin/pkg/platform/audit/store/memory"
	"schooladmin/pkg/requestcontext"
)

const studentID = "65a1f0c2e4b0a1b2c3d4e5f6"

type recordingEmitter struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (e *recordingEmitter) EmitDeferred(_ context.Context, build func() (audit.Entry, error)) {
	entry, err := build()
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
}

// heldEmitter keeps builds until the test runs them.
type heldEmitter struct {
	mu     sync.Mutex
	builds []func() (audit.Entry, error)
}

func (e *heldEmitter) EmitDeferred(_ context.Context, build func() (audit.Entry, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds = append(e.builds, build)
}

func (e *recordingEmitter) all() []audit.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]audit.Entry(nil), e.entries...)
}

func testClassifier() *classifier.Classifier {
	return classifier.MustNew([]classifier.Rule{
		{Method: "POST", Path: "/students", Action: "create_student", Resource: "Student"},
		{Method: "PUT", Path: "/students", Action: "update_student", Resource: "Student"},
		{Method: "DELETE", Path: "/students", Action: "delete_student", Resource: "Student"},
		{Method: "GET", Path: "/students/export", Action: "export_students", Resource: "Student"},
	})
}

type InterceptorSuite struct {
	suite.Suite
	emitter *recordingEmitter
	caller  requestcontext.Caller
	router  chi.Router
}

func TestInterceptorSuite(t *testing.T) {
	suite.Run(t, new(InterceptorSuite))
}

func (s *InterceptorSuite) SetupTest() {
	s.emitter = &recordingEmitter{}
	tenant := id.TenantID(uuid.New())
	s.caller = requestcontext.Caller{UserID: id.UserID(uuid.New()), TenantID: &tenant, Role: id.RoleAdmin}

	clock := fixedSteps(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), 40*time.Millisecond)
	ic := New(testClassifier(), s.emitter, WithClock(clock))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithIdentity(req.Context(), s.caller)
			ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
			ctx = requestcontext.WithRequestID(ctx, "req-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Use(ic.Middleware)
	r.Post("/students", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})
	r.Get("/students", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	r.Put("/students/{id}", func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		if req.URL.Query().Get("fail") != "" {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, req.URL.Query().Get("body"))
	})
	r.Delete("/students/{id}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	r.Get("/students/export", func(w http.ResponseWriter, _ *http.Request) {})
	s.router = r
}

func fixedSteps(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := current
		current = current.Add(step)
		return t
	}
}

func (s *InterceptorSuite) serve(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *InterceptorSuite) TestCreateStudentIsAudited() {
	payload := `{"firstName":"John","lastName":"Doe","grade":"5"}`
	rec := s.serve(http.MethodPost, "/students", payload)

	s.Equal(http.StatusCreated, rec.Code)
	s.JSONEq(payload, rec.Body.String(), "handler must receive the body unchanged")

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal("create_student", e.Action)
	s.Equal("Student", e.Resource)
	s.Equal(http.StatusCreated, e.StatusCode)
	s.Equal(http.MethodPost, e.HTTPMethod)
	s.Equal("/students", e.Endpoint)
	s.Empty(e.Error)
	s.Require().NotNil(e.ActorID)
	s.Equal(s.caller.UserID, *e.ActorID)
	s.Require().NotNil(e.TenantID)
	s.Equal(*s.caller.TenantID, *e.TenantID)
	s.Equal("203.0.113.7", e.IPAddress)
	s.Equal(int64(40), e.DurationMs)
	s.Equal("req-1", e.Metadata["requestId"])
	client, ok := e.Metadata["client"].(map[string]any)
	s.Require().True(ok)
	s.Equal("Firefox", client["browser"])
}

func (s *InterceptorSuite) TestUnmatchedRequestsProduceNothing() {
	rec := s.serve(http.MethodGet, "/students?page=2", "")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(`[]`, rec.Body.String())
	s.Empty(s.emitter.all())
}

func (s *InterceptorSuite) TestPathAndQueryMetadata() {
	rec := s.serve(http.MethodPut, "/students/"+studentID+"?notify=yes", "")
	s.Equal(http.StatusOK, rec.Code)

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal("update_student", e.Action)
	s.Equal(studentID, e.ResourceID)
	s.Equal("/students/"+studentID+"?notify=yes", e.Endpoint)
	s.Equal(map[string]any{"notify": "yes"}, e.Metadata["query"])
	s.Equal(map[string]any{"id": studentID}, e.Metadata["params"])
}

func (s *InterceptorSuite) TestHandlerWithoutExplicitStatus() {
	s.serve(http.MethodGet, "/students/export", "")

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	s.Equal("export_students", entries[0].Action)
	s.Equal(http.StatusOK, entries[0].StatusCode)
}

func (s *InterceptorSuite) TestErrorExtraction() {
	cases := []struct {
		name string
		fail bool
		body string
		want string
	}{
		{"error_description", true, `{"error":"validation_error","error_description":"first name is required"}`, "first name is required"},
		{"message field", true, `{"message":"grade out of range"}`, "grade out of range"},
		{"error string", true, `{"error":"duplicate email"}`, "duplicate email"},
		{"nested error object", true, `{"error":{"message":"student locked"}}`, "student locked"},
		{"unparseable body", true, `<html>bad</html>`, "Bad Request"},
		{"empty body", true, ``, "Bad Request"},
		{"success never carries error", false, `{"error":"looks like one"}`, ""},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()

			target := "/students/" + studentID + "?body=" + urlEscape(tc.body)
			if tc.fail {
				target += "&fail=1"
			}
			rec := s.serve(http.MethodPut, target, "")
			s.Equal(tc.body, rec.Body.String())

			entries := s.emitter.all()
			s.Require().Len(entries, 1)
			s.Equal(tc.want, entries[0].Error)
		})
	}
}

func (s *InterceptorSuite) TestPlainTextServerError() {
	rec := s.serve(http.MethodDelete, "/students/"+studentID, "")
	s.Equal(http.StatusInternalServerError, rec.Code)

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	s.Equal("delete_student", entries[0].Action)
	s.Equal("Internal Server Error", entries[0].Error)
}

func (s *InterceptorSuite) TestAnonymousRequestHasNoActor() {
	ic := New(testClassifier(), s.emitter)
	h := ic.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	req := httptest.NewRequest(http.MethodPost, "/students", nil)
	req.Header.Set("User-Agent", "curl/8.4.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	s.Nil(entries[0].ActorID)
	s.Nil(entries[0].TenantID)
	s.Equal("curl/8.4.0", entries[0].UserAgent)
	s.Equal("Unauthorized", entries[0].Error)
}

func urlEscape(s string) string {
	r := strings.NewReplacer("%", "%25", "&", "%26", "#", "%23", "+", "%2B", " ", "%20", "?", "%3F")
	return r.Replace(s)
}

func TestMiddleware_PreservesOptionalInterfaces(t *testing.T) {
	ic := New(testClassifier(), &recordingEmitter{})
	var flushable bool
	h := ic.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/students", nil))
	assert.True(t, flushable)
}

func TestMiddleware_StoreFailureDoesNotChangeResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Student", studentID)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"`+studentID+`"}`)
	})

	run := func(store audit.Store) *httptest.ResponseRecorder {
		pub := publisher.New(store)
		ic := New(testClassifier(), pub)
		rec := httptest.NewRecorder()
		ic.Middleware(handler).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"firstName":"Ana"}`)))
		require.NoError(t, pub.Close(context.Background()))
		return rec
	}

	healthy := memory.NewInMemoryStore()
	ok := run(healthy)

	ctrl := gomock.NewController(t)
	broken := mocks.NewMockStore(ctrl)
	broken.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil, errors.New("store down")).Times(1)
	failed := run(broken)

	assert.Equal(t, ok.Code, failed.Code)
	assert.Equal(t, ok.Body.String(), failed.Body.String())
	assert.Equal(t, ok.Header(), failed.Header())

	n, err := healthy.Count(context.Background(), audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMiddleware_RequestBodyIDFallback(t *testing.T) {
	emitter := &recordingEmitter{}
	ic := New(testClassifier(), emitter)
	h := ic.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"id":"stu-import-7"}`)))

	entries := emitter.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "stu-import-7", entries[0].ResourceID)
}

func TestErrorMessage_BoundedCapture(t *testing.T) {
	emitter := &recordingEmitter{}
	ic := New(testClassifier(), emitter, WithMaxBodyCapture(16))
	long := `{"error_description":"` + strings.Repeat("x", 64) + `"}`
	h := ic.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, long)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students", nil))

	assert.Equal(t, long, rec.Body.String(), "client receives the full body")
	entries := emitter.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "Conflict", entries[0].Error, "truncated body falls back to the status text")
}

func (s *InterceptorSuite) TestDurationStartsAtRequestEntry() {
	entered := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(-250 * time.Millisecond)
	req := httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{}`))
	req = req.WithContext(requestcontext.WithTime(req.Context(), entered))
	s.router.ServeHTTP(httptest.NewRecorder(), req)

	entries := s.emitter.all()
	s.Require().Len(entries, 1)
	s.Equal(int64(250), entries[0].DurationMs)
}

func TestMiddleware_PanickingHandlerIsAudited(t *testing.T) {
	emitter := &recordingEmitter{}
	ic := New(testClassifier(), emitter)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(ic.Middleware)
	r.Post("/students", func(http.ResponseWriter, *http.Request) {
		panic("nil student")
	})
	r.Put("/students/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late failure")
	})

	t.Run("before any write", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"firstName":"Ana"}`)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		entries := emitter.all()
		require.Len(t, entries, 1)
		assert.Equal(t, "create_student", entries[0].Action)
		assert.Equal(t, http.StatusInternalServerError, entries[0].StatusCode)
		assert.Equal(t, "Internal Server Error", entries[0].Error)
	})

	t.Run("after the status was written", func(t *testing.T) {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/students/"+studentID, nil))

		entries := emitter.all()
		require.Len(t, entries, 2)
		assert.Equal(t, "update_student", entries[1].Action)
		assert.Equal(t, http.StatusAccepted, entries[1].StatusCode)
		assert.Equal(t, "handler panicked", entries[1].Error)
	})
}

func TestMiddleware_AssemblesAfterTheRequestReturns(t *testing.T) {
	emitter := &heldEmitter{}
	ic := New(testClassifier(), emitter)

	r := chi.NewRouter()
	r.Use(ic.Middleware)
	r.Put("/students/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	const otherID = "65a1f0c2e4b0a1b2c3d4e5f7"
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/students/"+studentID, nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/students/"+otherID, nil))

	require.Len(t, emitter.builds, 2)
	first, err := emitter.builds[0]()
	require.NoError(t, err)
	assert.Equal(t, studentID, first.ResourceID, "route params are copied before chi reuses its context")
	assert.Equal(t, map[string]any{"id": studentID}, first.Metadata["params"])

	second, err := emitter.builds[1]()
	require.NoError(t, err)
	assert.Equal(t, otherID, second.ResourceID)
}

func TestMiddleware_BlockedStoreDoesNotDelayResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	release := make(chan struct{})
	store.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Entry) (*audit.Record, error) {
			<-release
			return &audit.Record{Action: e.Action}, nil
		}).Times(1)

	pub := publisher.New(store, publisher.WithTimeout(5*time.Second))
	ic := New(testClassifier(), pub)
	h := ic.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	served := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students", strings.NewReader(`{"firstName":"Ana"}`)))
		served <- rec.Code
	}()

	select {
	case code := <-served:
		assert.Equal(t, http.StatusCreated, code)
	case <-time.After(time.Second):
		t.Fatal("response waited on the audit store")
	}

	close(release)
	require.NoError(t, pub.Close(context.Background()))
}
