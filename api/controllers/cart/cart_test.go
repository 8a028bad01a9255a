package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-checkout/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

type stubCartService struct {
	items    []cartsvc.Item
	identity cartsvc.Identity
	pushed   []cartsvc.Item
	cleared  bool
	err      error
}

func (s *stubCartService) Pull(ctx context.Context, identity cartsvc.Identity) ([]cartsvc.Item, error) {
	s.identity = identity
	return s.items, s.err
}

func (s *stubCartService) Push(ctx context.Context, identity cartsvc.Identity, items []cartsvc.Item) ([]cartsvc.Item, error) {
	s.identity = identity
	s.pushed = items
	if s.err != nil {
		return nil, s.err
	}
	return cartsvc.Normalize(items), nil
}

func (s *stubCartService) Clear(ctx context.Context, identity cartsvc.Identity) error {
	s.identity = identity
	s.cleared = true
	return s.err
}

func (s *stubCartService) MergeGuestIntoUser(ctx context.Context, userID uuid.UUID, guestToken string) error {
	return nil
}

type envelope struct {
	Data struct {
		Items []cartsvc.Item `json:"items"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var body envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return body
}

func guestRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/cart", strings.NewReader(body))
	return req.WithContext(middleware.WithGuestToken(req.Context(), "guest-tok"))
}

func TestCartFetchUsesGuestIdentity(t *testing.T) {
	svc := &stubCartService{items: []cartsvc.Item{{ID: "p1::v1", Name: "Mug", Price: decimal.RequireFromString("12.50"), Quantity: 2}}}
	rec := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(rec, guestRequest(http.MethodGet, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.identity.GuestToken != "guest-tok" || svc.identity.UserID != nil {
		t.Fatalf("unexpected identity %+v", svc.identity)
	}
	body := decode(t, rec)
	if len(body.Data.Items) != 1 || body.Data.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", body.Data.Items)
	}
}

func TestCartFetchPrefersUser(t *testing.T) {
	svc := &stubCartService{}
	userID := uuid.New()
	req := guestRequest(http.MethodGet, "")
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))

	rec := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(rec, req)

	if svc.identity.UserID == nil || *svc.identity.UserID != userID {
		t.Fatalf("expected user identity, got %+v", svc.identity)
	}
	if body := decode(t, rec); body.Data.Items != nil && len(body.Data.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", body.Data.Items)
	}
}

func TestCartReplaceNormalizesItems(t *testing.T) {
	svc := &stubCartService{}
	payload := `{"items":[{"id":"a","name":"A","price":2,"quantity":2},{"id":"a","name":"A","price":2,"quantity":1},{"id":"b","name":"B","price":"1.25","quantity":0}]}`
	rec := httptest.NewRecorder()
	CartReplace(svc, nil).ServeHTTP(rec, guestRequest(http.MethodPost, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.pushed) != 3 {
		t.Fatalf("expected raw items forwarded to service, got %d", len(svc.pushed))
	}
	body := decode(t, rec)
	if len(body.Data.Items) != 1 || body.Data.Items[0].Quantity != 1 {
		t.Fatalf("expected one normalized line, got %+v", body.Data.Items)
	}
}

func TestCartReplaceRejectsInvalidBody(t *testing.T) {
	svc := &stubCartService{}
	rec := httptest.NewRecorder()
	CartReplace(svc, nil).ServeHTTP(rec, guestRequest(http.MethodPost, `{"items":[{"id":"","quantity":1}]}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.pushed != nil {
		t.Fatal("service should not be called")
	}
}

func TestCartReplaceWithoutSession(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "cart session required")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart", strings.NewReader(`{"items":[]}`))
	rec := httptest.NewRecorder()
	CartReplace(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if code := decode(t, rec).Error.Code; code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCartClear(t *testing.T) {
	svc := &stubCartService{}
	rec := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(rec, guestRequest(http.MethodPost, ""))

	if rec.Code != http.StatusOK || !svc.cleared {
		t.Fatalf("expected cleared cart, code=%d cleared=%v", rec.Code, svc.cleared)
	}
	if !strings.Contains(rec.Body.String(), `"cleared":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
