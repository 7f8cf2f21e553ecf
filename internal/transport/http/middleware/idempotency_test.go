package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"permitflow/internal/domain/auth"
)

type memoryIdempotency struct {
	mu      sync.Mutex
	entries map[string]struct {
		hash string
		resp StoredResponse
	}
}

func (m *memoryIdempotency) Check(_ context.Context, userID, endpoint, key, hash string) (StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID+"|"+endpoint+"|"+key]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if entry.hash != hash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return entry.resp, true, nil
}

func (m *memoryIdempotency) Save(_ context.Context, userID, endpoint, key, hash string, resp StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]struct {
			hash string
			resp StoredResponse
		}{}
	}
	m.entries[userID+"|"+endpoint+"|"+key] = struct {
		hash string
		resp StoredResponse
	}{hash, resp}
	return nil
}

func TestRequestHashDeterministic(t *testing.T) {
	hash1 := RequestHash([]byte("payload"))
	hash2 := RequestHash([]byte("payload"))
	hash3 := RequestHash([]byte("other"))

	if hash1 != hash2 {
		t.Fatal("expected deterministic hash")
	}
	if hash1 == hash3 {
		t.Fatal("expected different hash for different payload")
	}
}

func TestIdempotentReplaysAndRejectsChangedBody(t *testing.T) {
	calls := 0
	handler := Idempotent(&memoryIdempotency{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/permits", bytes.NewBufferString(body))
		req.Header.Set("Idempotency-Key", "k1")
		req = req.WithContext(WithUser(req.Context(), auth.UserContext{UserID: "u1"}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"typeId":"ASUNTOS_PARTICULARES"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	replay := send(`{"typeId":"ASUNTOS_PARTICULARES"}`)
	if replay.Code != http.StatusCreated || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 201, got %d", replay.Code)
	}
	if replay.Body.String() != first.Body.String() {
		t.Fatalf("expected identical body, got %q", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}

	conflict := send(`{"typeId":"CITA_MEDICA"}`)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("expected 409 for changed body, got %d", conflict.Code)
	}
}
