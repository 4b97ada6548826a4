package mill

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/millerp/millerp/internal/audit"
	"github.com/millerp/millerp/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMillID  = "a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"
	testActorID = "b1ffcd88-8d1a-4ef8-bb6d-6bb9bd380a22"
)

// captureLogger records audit events.
type captureLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *captureLogger) Log(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *captureLogger) Close() error { return nil }

func (l *captureLogger) Events() []audit.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]audit.Event{}, l.events...)
}

type fakeMills struct {
	mills map[string]*Mill
	err   error
}

func (f *fakeMills) Create(_ context.Context, name, slug string) (*Mill, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	for _, m := range f.mills {
		if m.Slug == slug {
			return nil, ErrSlugTaken
		}
	}
	m := &Mill{ID: testMillID, Name: name, Slug: slug, Status: StatusActive, CreatedAt: time.Now()}
	f.mills[m.ID] = m
	return m, nil
}

func (f *fakeMills) GetByID(_ context.Context, id string) (*Mill, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.mills[id]
	if !ok {
		return nil, ErrMillNotFound
	}
	return m, nil
}

func (f *fakeMills) List(context.Context) ([]Mill, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Mill
	for _, m := range f.mills {
		out = append(out, *m)
	}
	return out, nil
}

func (f *fakeMills) SetStatus(ctx context.Context, id, status string) (*Mill, error) {
	m, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Status = status
	return m, nil
}

func withActor(r *http.Request) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), &auth.Identity{
		UserID: testActorID,
		Role:   "super-admin",
	}))
}

func TestHandler_Create(t *testing.T) {
	logger := &captureLogger{}
	h := NewHandler(&fakeMills{mills: map[string]*Mill{}}, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mills", strings.NewReader(`{"name":"Sri Lakshmi","slug":"sri-lakshmi"}`))
	w := httptest.NewRecorder()
	h.HandleCreate(w, withActor(req))

	require.Equal(t, http.StatusCreated, w.Code)
	var m Mill
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "sri-lakshmi", m.Slug)

	events := logger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionMillCreated, events[0].Action)
	require.NotNil(t, events[0].UserID)
	assert.Equal(t, testActorID, events[0].UserID.String())
	require.NotNil(t, events[0].ResourceID)
	assert.Equal(t, testMillID, events[0].ResourceID.String())
}

func TestHandler_CreateErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing name", `{"slug":"abc"}`, http.StatusBadRequest},
		{"invalid slug", `{"name":"X","slug":"A!"}`, http.StatusBadRequest},
		{"reserved slug", `{"name":"X","slug":"api"}`, http.StatusBadRequest},
		{"taken slug", `{"name":"X","slug":"existing"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeMills{mills: map[string]*Mill{"x": {ID: "x", Slug: "existing"}}}
			logger := &captureLogger{}
			h := NewHandler(repo, logger)

			w := httptest.NewRecorder()
			h.HandleCreate(w, httptest.NewRequest(http.MethodPost, "/api/v1/mills", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, logger.Events())
		})
	}
}

func TestHandler_CreateStoreFailure(t *testing.T) {
	h := NewHandler(&fakeMills{err: errors.New("db down")}, nil)

	w := httptest.NewRecorder()
	h.HandleCreate(w, httptest.NewRequest(http.MethodPost, "/api/v1/mills", strings.NewReader(`{"name":"X","slug":"xyz"}`)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandler_Get(t *testing.T) {
	repo := &fakeMills{mills: map[string]*Mill{testMillID: {ID: testMillID, Slug: "sri-lakshmi"}}}
	h := NewHandler(repo, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/mills/{id}", h.HandleGet)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mills/"+testMillID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mills/"+testActorID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/mills/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ListEmpty(t *testing.T) {
	h := NewHandler(&fakeMills{mills: map[string]*Mill{}}, nil)

	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/mills", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_SetStatus(t *testing.T) {
	repo := &fakeMills{mills: map[string]*Mill{testMillID: {ID: testMillID, Slug: "sri-lakshmi", Status: StatusActive}}}
	logger := &captureLogger{}
	h := NewHandler(repo, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/v1/mills/{id}/status", h.HandleSetStatus)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, withActor(httptest.NewRequest(http.MethodPut, "/api/v1/mills/"+testMillID+"/status",
		strings.NewReader(`{"status":"suspended"}`))))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusSuspended, repo.mills[testMillID].Status)
	require.Len(t, logger.Events(), 1)
	assert.Equal(t, audit.ActionMillStatusChanged, logger.Events()[0].Action)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/v1/mills/"+testMillID+"/status",
		strings.NewReader(`{"status":"deleted"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
