package api

import (
	"errors"
	"net/http"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrInvalidBody = errors.New("invalid request body")

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		logging.Logger.Warn("failed to encode response", zap.String("error", err.Error()))
	}
}

func writeXML(w http.ResponseWriter, document string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(document))
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Logger.Error("request failed", zap.String("error", err.Error()))
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})

		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, campaign.ErrValidation),
		errors.Is(err, driver.ErrValidation),
		errors.Is(err, driver.ErrMissingHeader),
		errors.Is(err, driver.ErrEmptyRoster),
		errors.Is(err, driver.ErrInvalidPhone):
		return http.StatusBadRequest
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, recording.ErrNotFound),
		errors.Is(err, transcript.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrAlreadyStarted),
		errors.Is(err, campaign.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrNoTargets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, summarizer.ErrNotConfigured),
		errors.Is(err, store.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, target any) error {
	err := json.NewDecoder(r.Body).Decode(target)
	if err != nil {
		return errors.Join(ErrInvalidBody, err)
	}

	return nil
}
