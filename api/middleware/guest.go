package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

// GuestSessions resolves and mints anonymous cart sessions.
type GuestSessions interface {
	Resolve(ctx context.Context, token string) (*models.Guest, error)
	GetOrCreate(ctx context.Context, token string) (*models.Guest, bool, error)
}

// GuestSession carries the anonymous cart cookie into the request context.
// Anonymous requests get a session minted (and the cookie set) when theirs is
// missing or stale. Authenticated requests only forward a still-valid token so
// the guest cart can be merged.
func GuestSession(guests GuestSessions, cfg config.StorefrontConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := ""
			if cookie, err := r.Cookie(cfg.GuestCookieName); err == nil {
				token = cookie.Value
			}

			if UserIDFromContext(ctx) != "" {
				guest, err := guests.Resolve(ctx, token)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				if guest != nil {
					ctx = WithGuestToken(ctx, guest.SessionToken)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			guest, created, err := guests.GetOrCreate(ctx, token)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if created {
				http.SetCookie(w, guestCookie(cfg, guest.SessionToken))
			}
			ctx = WithGuestToken(ctx, guest.SessionToken)
			if logg != nil {
				ctx = logg.WithGuestID(ctx, guest.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func guestCookie(cfg config.StorefrontConfig, token string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     cfg.GuestCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.GuestCookieTTL > 0 {
		cookie.MaxAge = int(cfg.GuestCookieTTL / time.Second)
		cookie.Expires = time.Now().Add(cfg.GuestCookieTTL)
	}
	return cookie
}
