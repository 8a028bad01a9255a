package guests

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const uniqueSessionToken = "ux_guests_session_token"

type guestRepository interface {
	FindByToken(ctx context.Context, token string) (*models.Guest, error)
	Create(ctx context.Context, guest *models.Guest) error
}

// ServiceParams wires the guest session service.
type ServiceParams struct {
	Repo guestRepository
	// TTL bounds how long a guest session stays valid; zero means no expiry.
	TTL time.Duration
	Now func() time.Time
}

// Service mints and resolves anonymous guest sessions.
type Service struct {
	repo guestRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewService validates dependencies and returns a guest service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "guest repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, ttl: params.TTL, now: now}, nil
}

// Resolve returns the live guest for token, or nil when the token is unknown or expired.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Guest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	guest, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest session")
	}
	if guest == nil || s.expired(guest) {
		return nil, nil
	}
	return guest, nil
}

// GetOrCreate resolves token, minting a fresh session when it is missing or stale.
// The boolean reports whether a new session was created.
func (s *Service) GetOrCreate(ctx context.Context, token string) (*models.Guest, bool, error) {
	guest, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if guest != nil {
		return guest, false, nil
	}

	now := s.now().UTC()
	guest = &models.Guest{
		ID:           uuid.New(),
		SessionToken: uuid.NewString(),
		CreatedAt:    now,
	}
	if s.ttl > 0 {
		expires := now.Add(s.ttl)
		guest.ExpiresAt = &expires
	}
	if err := s.repo.Create(ctx, guest); err != nil {
		if db.IsUniqueViolation(err, uniqueSessionToken) {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "guest session collision")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create guest session")
	}
	return guest, true, nil
}

func (s *Service) expired(guest *models.Guest) bool {
	return guest.ExpiresAt != nil && !guest.ExpiresAt.After(s.now())
}
