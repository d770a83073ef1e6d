package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/payload"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/telemetry"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/usecase"
	"github.com/vasapolrittideah/running-tracker-api/shared/middleware"
)

const (
	defaultListLimit = 10

	// maxRequestBodyBytes covers a full batch of segments with dense coordinates.
	maxRequestBodyBytes = 16 << 20
)

var errTrailingData = errors.New("unexpected data after request body")

type runningHTTPHandler struct {
	runningUsecase usecase.RunningUsecase
	logger         *zerolog.Logger
	now            func() time.Time
	maxBodyBytes   int64
}

func NewRunningHTTPHandler(runningUsecase usecase.RunningUsecase, logger *zerolog.Logger) *runningHTTPHandler {
	return &runningHTTPHandler{
		runningUsecase: runningUsecase,
		logger:         logger,
		now:            time.Now,
		maxBodyBytes:   maxRequestBodyBytes,
	}
}

// RegisterRoutes mounts the running session routes on r. Authentication is
// applied by the caller.
func (h *runningHTTPHandler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.SubmitRunningData)
	r.Get("/next-session", h.GetNextSessionNumber)
	r.Get("/sessions", h.ListUserSessions)
	r.Get("/session/{sessionKey}", h.GetSessionByKey)
	r.Delete("/sessions", h.DeleteUserSessions)
}

func (h *runningHTTPHandler) SubmitRunningData(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	req, err := h.decodeRunningData(w, r)
	if err != nil {
		h.logger.Debug().Err(err).Int64("user_id", userID).Msg("failed to decode running data")

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	now := h.now()
	res, err := h.runningUsecase.SubmitRunningData(r.Context(), usecase.SubmitRunningDataParams{
		UserID:  userID,
		Request: req,
		Now:     now,
	})
	if err != nil {
		var validationErr *telemetry.ValidationError

		switch {
		case errors.As(err, &validationErr):
			h.logger.Warn().Err(err).Int64("user_id", userID).Msg("rejected running data")
			h.writeError(w, http.StatusBadRequest, validationErr.Error())
		case errors.Is(err, usecase.ErrInvalidUserID):
			h.writeError(w, http.StatusUnauthorized, "invalid user id")
		case errors.Is(err, usecase.ErrStorageUnavailable):
			h.logger.Error().Err(err).Msg("failed to submit running data")
			h.writeError(w, http.StatusServiceUnavailable, "running data could not be saved, try again later")
		default:
			h.logger.Error().Err(err).Msg("failed to submit running data")
			h.writeError(w, http.StatusInternalServerError, "something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// decodeRunningData reads exactly one JSON value from the body.
func (h *runningHTTPHandler) decodeRunningData(w http.ResponseWriter, r *http.Request) (*payload.RunningDataRequest, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))

	var req payload.RunningDataRequest
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return nil, err
	}

	return &req, nil
}

func (h *runningHTTPHandler) GetNextSessionNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	next, err := h.runningUsecase.GetNextSessionNumber(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to get next session number")
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, next)
}

func (h *runningHTTPHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	sessions, err := h.runningUsecase.ListUserSessions(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list running sessions")
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *runningHTTPHandler) GetSessionByKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	session, err := h.runningUsecase.GetSessionByKey(r.Context(), userID, chi.URLParam(r, "sessionKey"))
	if err != nil {
		if !errors.Is(err, usecase.ErrSessionNotFound) {
			h.logger.Error().Err(err).Msg("failed to get running session")
		}
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *runningHTTPHandler) DeleteUserSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	deleted, err := h.runningUsecase.DeleteUserSessions(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to delete running sessions")
		h.writeUsecaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payload.DeleteSessionsResponse{DeletedCount: deleted})
}

func (h *runningHTTPHandler) writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidUserID):
		h.writeError(w, http.StatusUnauthorized, "invalid user id")
	case errors.Is(err, usecase.ErrInvalidLimit):
		h.writeError(w, http.StatusBadRequest, usecase.ErrInvalidLimit.Error())
	case errors.Is(err, usecase.ErrInvalidSessionKey):
		h.writeError(w, http.StatusBadRequest, usecase.ErrInvalidSessionKey.Error())
	case errors.Is(err, usecase.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, usecase.ErrSessionNotFound.Error())
	case errors.Is(err, usecase.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "running session storage is unavailable, try again later")
	default:
		h.writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

func (h *runningHTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, payload.NewErrorResponse(message, h.now()))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
