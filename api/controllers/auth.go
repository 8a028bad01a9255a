package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

type authCheckResponse struct {
	LoggedIn bool   `json:"loggedIn"`
	UserID   string `json:"userId"`
}

// AuthCheck reports whether the request carries a valid session.
func AuthCheck(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "not logged in"))
			return
		}
		responses.WriteSuccess(w, authCheckResponse{LoggedIn: true, UserID: userID})
	}
}
