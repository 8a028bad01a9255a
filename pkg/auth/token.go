package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
)

// clockSkew is how far the auth provider's clock may drift from ours.
const clockSkew = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var (
	// ErrMissingSubject is returned when a token verifies but names no shopper.
	ErrMissingSubject = errors.New("token does not identify a user")
	errNoSecret       = errors.New("jwt secret is required")
)

// Verifier checks bearer tokens minted by the auth provider. The storefront
// never issues shopper tokens itself.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}
}

// Verify returns the claims of a valid token. The shopper id comes from the
// user_id claim, or from a UUID subject when user_id is absent.
func (v *Verifier) Verify(raw string) (*AccessTokenClaims, error) {
	if len(v.secret) == 0 {
		return nil, errNoSecret
	}
	claims := &AccessTokenClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, v.key); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		if sub, err := uuid.Parse(claims.Subject); err == nil {
			claims.UserID = sub
		}
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

// MintAccessToken signs a token the way the auth provider does. It backs
// local tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.UserID == uuid.Nil:
		return "", ErrMissingSubject
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  strings.TrimSpace(payload.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}
