package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-checkout/pkg/redis"
)

const idempotencyHeader = "Idempotency-Key"

// replayPolicy covers one cart or checkout write. lease bounds how long an
// unfinished request blocks its key; keep is how long the response replays.
type replayPolicy struct {
	method string
	route  string
	name   string
	lease  time.Duration
	keep   time.Duration
}

// Checkout sessions expire at the provider after a day, so a checkout replay
// stops just short of that. Cart writes are full replacements and only need
// to absorb client retries.
var replayPolicies = []replayPolicy{
	{method: http.MethodPost, route: "/api/v1/checkout", name: "checkout", lease: 2 * time.Minute, keep: 23 * time.Hour},
	{method: http.MethodPost, route: "/api/v1/cart", name: "cart.replace", lease: 30 * time.Second, keep: 15 * time.Minute},
	{method: http.MethodPost, route: "/api/v1/cart/clear", name: "cart.clear", lease: 30 * time.Second, keep: 15 * time.Minute},
	{method: http.MethodDelete, route: "/api/v1/cart", name: "cart.clear", lease: 30 * time.Second, keep: 15 * time.Minute},
}

const (
	replayPending = "pending"
	replayDone    = "done"
)

// replayRecord is stored under the key twice: first as a pending claim, then
// as the finished response.
type replayRecord struct {
	State       string `json:"state"`
	BodySHA     string `json:"body_sha"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency lets shoppers retry cart writes and checkout with the same
// Idempotency-Key. The first request claims the key; a repeat with the same
// body gets the stored response, a repeat with another body is rejected, and
// a repeat that arrives while the first is still running gets a conflict.
// Server errors release the key so the retry runs again.
func Idempotency(store pkgredis.KV, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, ok := policyFor(r)
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			sum := sha256.Sum256(body)
			bodySHA := hex.EncodeToString(sum[:])

			key := pkgredis.Key(pkgredis.SpaceReplay, shopperScope(ctx), policy.name, clientKey)
			claim, _ := json.Marshal(replayRecord{State: replayPending, BodySHA: bodySHA})
			claimed, err := store.SetNX(ctx, key, string(claim), policy.lease)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayExisting(ctx, store, logg, w, key, bodySHA)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the shopper may already be gone; the outcome still has to be recorded
			saveCtx := context.WithoutCancel(ctx)
			if capture.status >= http.StatusInternalServerError {
				if err := store.Del(saveCtx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			done, err := json.Marshal(replayRecord{
				State:       replayDone,
				BodySHA:     bodySHA,
				Status:      capture.statusOrOK(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err == nil {
				err = store.Set(saveCtx, key, string(done), policy.keep)
			}
			if err != nil && logg != nil {
				logg.Error(logg.WithField(ctx, "policy", policy.name), "idempotency.store_failed", err)
			}
		})
	}
}

func replayExisting(ctx context.Context, store pkgredis.KV, logg *logger.Logger, w http.ResponseWriter, key, bodySHA string) {
	raw, err := store.Get(ctx, key)
	if pkgredis.IsNil(err) {
		// claim expired between SetNX and Get; the client can simply retry
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var record replayRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case record.BodySHA != bodySHA:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key reused with a different request body"))
	case record.State != replayDone:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this Idempotency-Key is still in progress"))
	default:
		if record.ContentType != "" {
			w.Header().Set("Content-Type", record.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(record.Status)
		_, _ = w.Write(record.Body)
	}
}

// policyFor matches the chi route pattern, falling back to the raw path when
// the middleware runs outside a chi router.
func policyFor(r *http.Request) (replayPolicy, bool) {
	route := strings.TrimRight(r.URL.Path, "/")
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			route = pattern
		}
	}
	for _, policy := range replayPolicies {
		if policy.method == r.Method && policy.route == route {
			return policy, true
		}
	}
	return replayPolicy{}, false
}

// shopperScope binds a key to whoever sent it so two shoppers can reuse the
// same client-generated value.
func shopperScope(ctx context.Context) string {
	if userID := UserIDFromContext(ctx); userID != "" {
		return "user:" + userID
	}
	if token := GuestTokenFromContext(ctx); token != "" {
		sum := sha256.Sum256([]byte(token))
		return "guest:" + hex.EncodeToString(sum[:8])
	}
	return "anonymous"
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusOrOK() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
