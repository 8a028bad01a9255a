package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

type itemsBody struct {
	Items []struct {
		ID       string `json:"id" validate:"required"`
		Quantity int    `json:"quantity"`
	} `json:"items" validate:"dive"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"id":"","quantity":1}]}`))
	var body itemsBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[],"extra":true}`))
	var body itemsBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeOptionalJSONBody(t *testing.T) {
	var body itemsBody

	present, err := DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", nil), &body)
	if err != nil || present {
		t.Fatalf("nil body should be absent, present=%v err=%v", present, err)
	}

	present, err = DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  \n")), &body)
	if err != nil || present {
		t.Fatalf("blank body should be absent, present=%v err=%v", present, err)
	}

	present, err = DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"id":"a","quantity":2}]}`)), &body)
	if err != nil || !present {
		t.Fatalf("expected decoded body, present=%v err=%v", present, err)
	}
	if len(body.Items) != 1 || body.Items[0].Quantity != 2 {
		t.Fatalf("unexpected body %+v", body)
	}

	_, err = DecodeOptionalJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":`)), &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for malformed body, got %v", err)
	}
}

type pricedBody struct {
	Items []struct {
		ID    string          `json:"id" validate:"required"`
		Price decimal.Decimal `json:"price" validate:"gte=0"`
	} `json:"items" validate:"max=2,dive"`
}

func TestDecodeJSONBodyReportsFieldPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"id":"a","price":"4.00"},{"id":"","price":"-1"}]}`))
	var body pricedBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", typed.Details())
	}
	if details["items[1].id"] != "is required" {
		t.Fatalf("unexpected id detail %q", details["items[1].id"])
	}
	if details["items[1].price"] != "must be at least 0" {
		t.Fatalf("unexpected price detail %q", details["items[1].price"])
	}
}

func TestDecodeJSONBodyLimitsLineCount(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"id":"a"},{"id":"b"},{"id":"c"}]}`))
	var body pricedBody
	err := DecodeJSONBody(req, &body)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["items"] != "must have at most 2 items" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsTrailingDocuments(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[]} {"items":[]}`))
	var body itemsBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	payload := `{"items":[{"id":"` + strings.Repeat("x", maxBodyBytes) + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	var body itemsBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) || !strings.Contains(pkgerrors.As(err).Message(), "exceeds") {
		t.Fatalf("expected size error, got %v", err)
	}
}
