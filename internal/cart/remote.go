package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

const cartPath = "/api/v1/cart"

// HTTPRemote talks to the cart API. Its cookie jar carries the guest cookie
// minted on the first request, so later calls address the same guest cart.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewHTTPRemote builds a remote for baseURL. bearerToken may be empty for guests.
func NewHTTPRemote(baseURL, bearerToken string, client *http.Client) (*HTTPRemote, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("cart api base url required")
	}
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		client = &http.Client{Jar: jar, Timeout: 10 * time.Second}
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		token:   strings.TrimSpace(bearerToken),
	}, nil
}

type itemsBody struct {
	Items []Item `json:"items"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Pull fetches the server cart.
func (r *HTTPRemote) Pull(ctx context.Context) ([]Item, error) {
	var body itemsBody
	if err := r.do(ctx, http.MethodGet, nil, &body); err != nil {
		return nil, err
	}
	if body.Items == nil {
		return []Item{}, nil
	}
	return body.Items, nil
}

// Push replaces the server cart with items.
func (r *HTTPRemote) Push(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	payload, err := json.Marshal(itemsBody{Items: items})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return r.do(ctx, http.MethodPost, payload, nil)
}

func (r *HTTPRemote) do(ctx context.Context, method string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+cartPath, reader)
	if err != nil {
		return fmt.Errorf("build cart request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("cart request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && err != io.EOF {
		return fmt.Errorf("decode cart response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if env.Error != nil {
			return fmt.Errorf("cart api %d: %s", resp.StatusCode, env.Error.Message)
		}
		return fmt.Errorf("cart api returned %d", resp.StatusCode)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode cart data: %w", err)
	}
	return nil
}
