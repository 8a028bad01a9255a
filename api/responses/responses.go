package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// WriteSuccess writes data as a 200 {"data": ...} envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err through its code's public view. Server-side failures
// are logged with the flattened error chain; client errors only get a warning.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("error without cause")
	}
	view := pkgerrors.PublicView(err)

	if logg != nil {
		if view.Status >= http.StatusInternalServerError {
			fields := pkgerrors.LogFields(err)
			fields["http_status"] = view.Status
			logg.Error(logg.WithFields(ctx, fields), "request.error", err)
		} else {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"error_code":  string(view.Code),
				"http_status": view.Status,
			}), "request.rejected")
		}
	}

	writeJSON(w, view.Status, types.ErrorEnvelope{Error: types.APIError{
		Code:    string(view.Code),
		Message: view.Message,
		Details: view.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
