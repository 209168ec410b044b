package oracle

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zsphere/internal/grant"
)

const (
	UserDecryptPath = "/v1/user-decrypt"
	HealthPath      = "/healthz"

	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// Routes returns the oracle's HTTP API.
func (o *Oracle) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post(UserDecryptPath, o.handleUserDecrypt)
	return r
}

func (o *Oracle) handleUserDecrypt(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())

	var req grant.UserDecryptRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		o.writeError(w, reqID, errorsmod.Wrap(grant.ErrBadRequest, err.Error()))
		return
	}

	res, err := o.UserDecrypt(r.Context(), req)
	if err != nil {
		o.writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (o *Oracle) writeError(w http.ResponseWriter, reqID string, err error) {
	space, code, msg := errorsmod.ABCIInfo(err, false)
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		o.logger.Error("user decrypt failed", "request_id", reqID, "err", err)
	} else {
		o.logger.Info("user decrypt rejected", "request_id", reqID, "codespace", space, "code", code)
	}
	writeJSON(w, status, grant.ErrorResponse{Codespace: space, Code: code, Message: msg, RequestID: reqID})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, grant.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, grant.ErrDecryptionUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, grant.ErrDecryptionWindowExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
