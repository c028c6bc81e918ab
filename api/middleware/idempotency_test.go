package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/gpo-backend/pkg/errors"
)

const (
	intentsPattern = "/api/v1/gpo/groups/{slug}/intents"
	ordersPattern  = "/api/v1/gpo/groups/{slug}/orders"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		pattern  string
		ok       bool
		critical bool
	}{
		{"submit intent", http.MethodPost, intentsPattern, true, false},
		{"create order", http.MethodPost, ordersPattern, true, true},
		{"cancel order", http.MethodPost, "/api/v1/gpo/groups/{slug}/orders/{orderId}/cancel", true, true},
		{"list orders", http.MethodGet, ordersPattern, false, false},
		{"advance order", http.MethodPut, "/api/v1/gpo/groups/{slug}/orders/{orderId}/status", false, false},
	}
	for _, tt := range tests {
		rule, ok := matchRule(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && rule.critical != tt.critical {
			t.Fatalf("%s: expected critical=%v", tt.name, tt.critical)
		}
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{}, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(`{}`))
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{Default: time.Hour, Critical: 48 * time.Hour}, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"o-1"}}`))
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/orders", ordersPattern, strings.NewReader(`{"product_name":"x"}`))
	req.Header.Set("Idempotency-Key", "abc")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", resp.Code)
	}
	for key, ttl := range store.ttls {
		if ttl != 48*time.Hour {
			t.Fatalf("order creation should use the critical ttl, %s got %v", key, ttl)
		}
	}

	replay := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/orders", ordersPattern, strings.NewReader(`{"product_name":"x"}`))
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":{"id":"o-1"}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDoesNotStoreServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{}, nil)
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "retry-me")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("a failed attempt must be retryable, handler ran %d times", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(`{"quantity_units":1}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(`{"quantity_units":2}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{}, nil)
	body := `{"quantity_units":5}`

	var inner *httptest.ResponseRecorder
	calls := 0
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			dup := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(body))
			dup.Header.Set("Idempotency-Key", "same")
			inner = httptest.NewRecorder()
			mw(handler).ServeHTTP(inner, dup)
		}
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "same")
	outer := httptest.NewRecorder()
	mw(handler).ServeHTTP(outer, req)

	if outer.Code != http.StatusCreated {
		t.Fatalf("expected first request 201 got %d", outer.Code)
	}
	if inner == nil || inner.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409")
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, expected 1", calls)
	}
	for key, ttl := range store.ttls {
		if ttl != defaultIdempotencyTTL {
			t.Fatalf("completed record %s should use the default ttl, got %v", key, ttl)
		}
	}
}

func TestIdempotencyReplayIsMarked(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, IdempotencyTTLs{}, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	for i, want := range []string{"", "true"} {
		req := requestWithPattern(http.MethodPost, "/api/v1/gpo/groups/sur/intents", intentsPattern, strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "mark")
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if got := resp.Header().Get("Idempotent-Replayed"); got != want {
			t.Fatalf("request %d: expected replay header %q got %q", i, want, got)
		}
	}
}
