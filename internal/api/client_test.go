package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ncastellan/deskwatch/internal/api"
)

func newTestClient(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, "test-token", zap.NewNop().Sugar())
}

func TestBearerTokenSent(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))

	if _, err := c.Notifications(context.Background()); err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

func TestEnvelopeUnwrapped(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": [{"id": "n-1", "title": "Hello"}]}`))
	}))

	items, err := c.Notifications(context.Background())
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n-1" {
		t.Errorf("envelope not unwrapped: %+v", items)
	}
}

func TestBarePayloadAccepted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": "n-1", "title": "Hello"}]`))
	}))

	items, err := c.Notifications(context.Background())
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n-1" {
		t.Errorf("bare payload not decoded: %+v", items)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Notifications(context.Background())
	if !api.IsAuthError(err) {
		t.Errorf("expected AuthError, got %v", err)
	}
}

func TestServerErrorIsTransportError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := c.Notifications(context.Background())
	var terr *api.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", terr.Status)
	}
}

func TestMalformedBodyIsProtocolError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>proxy error page</html>`))
	}))

	_, err := c.Notifications(context.Background())
	var perr *api.ProtocolError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProtocolError, got %v", err)
	}
}
