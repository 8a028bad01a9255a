package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestHTTPRemoteRoundTripCarriesGuestCookie(t *testing.T) {
	var stored []Item
	var sawCookie bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cart" {
			http.NotFound(w, r)
			return
		}
		if c, err := r.Cookie("guest_cart_id"); err == nil && c.Value == "tok" {
			sawCookie = true
		} else {
			http.SetCookie(w, &http.Cookie{Name: "guest_cart_id", Value: "tok", Path: "/"})
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			var body itemsBody
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			stored = body.Items
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"items": stored}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"items": stored}})
		}
	}))
	defer srv.Close()

	remote, err := NewHTTPRemote(srv.URL+"/", "", nil)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	ctx := context.Background()

	if err := remote.Push(ctx, []Item{{ID: "a", Name: "A", Price: decimal.RequireFromString("2.50"), Quantity: 2}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	items, err := remote.Pull(ctx)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if !sawCookie {
		t.Fatal("expected guest cookie replayed on second request")
	}
	if len(items) != 1 || items[0].Quantity != 2 || !items[0].Price.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestHTTPRemoteSurfacesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"DEPENDENCY_ERROR","message":"dependency unavailable"}}`))
	}))
	defer srv.Close()

	remote, err := NewHTTPRemote(srv.URL, "token", nil)
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	if err := remote.Push(context.Background(), nil); err == nil {
		t.Fatal("expected error from 503")
	}
}

func TestNewHTTPRemoteRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPRemote(" ", "", nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
