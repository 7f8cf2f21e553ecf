package notificationshandler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitflow/internal/domain/auth"
	"permitflow/internal/domain/notifications"
	"permitflow/internal/platform/memstore"
	notificationshandler "permitflow/internal/transport/http/handlers/notifications"
	"permitflow/internal/transport/http/middleware"
)

type listBody struct {
	Data []notifications.Notification `json:"data"`
}

func setup(t *testing.T) http.Handler {
	t.Helper()
	store := memstore.New()
	svc := notifications.New(store, nil, "")
	base := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)
	for i, typ := range []string{notifications.TypeSubmitted, notifications.TypeApproved} {
		require.NoError(t, svc.Deliver(context.Background(), notifications.Event{
			Type:         typ,
			RequestID:    "r1",
			TargetUserID: "u1",
			OccurredAt:   base.Add(time.Duration(i) * time.Hour),
		}))
	}
	r := chi.NewRouter()
	notificationshandler.NewHandler(svc).RegisterRoutes(r)
	return r
}

func as(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: userID, Role: auth.RoleEmployee}))
}

func list(t *testing.T, router http.Handler, userID, query string) ([]notifications.Notification, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, as(httptest.NewRequest(http.MethodGet, "/notifications/"+query, nil), userID))
	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Data, rec
}

func TestListIsScopedToCallerAndPaged(t *testing.T) {
	router := setup(t)

	items, rec := list(t, router, "u1", "?limit=1")
	require.Len(t, items, 1)
	assert.Equal(t, notifications.TypeApproved, items[0].Type)
	assert.Equal(t, "2", rec.Header().Get("X-Total-Count"))

	items, rec = list(t, router, "someone-else", "")
	assert.Empty(t, items)
	assert.Equal(t, "0", rec.Header().Get("X-Total-Count"))
}

func TestListRequiresUser(t *testing.T) {
	rec := httptest.NewRecorder()
	setup(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkRead(t *testing.T) {
	router := setup(t)
	items, _ := list(t, router, "u1", "")
	require.NotEmpty(t, items)
	id := items[0].ID

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/notifications/"+id+"/read", nil), "intruder"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/notifications/"+id+"/read", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	items, _ = list(t, router, "u1", "")
	assert.NotNil(t, items[0].ReadAt)
}
