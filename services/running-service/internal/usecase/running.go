package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/payload"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/repository"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/telemetry"
)

// RunningUsecase defines the interface for running data use cases.
type RunningUsecase interface {
	// SubmitRunningData validates a batch and appends it to the session it belongs to.
	SubmitRunningData(ctx context.Context, params SubmitRunningDataParams) (*payload.RunningDataResponse, error)

	// GetNextSessionNumber returns the session number the client should use for a new workout.
	GetNextSessionNumber(ctx context.Context, userID int64) (int, error)

	// ListUserSessions returns up to limit sessions of the user, newest first.
	ListUserSessions(ctx context.Context, userID int64, limit int) ([]*model.RunningSession, error)

	// GetSessionByKey returns a single session of the user.
	GetSessionByKey(ctx context.Context, userID int64, sessionKey string) (*model.RunningSession, error)

	// DeleteUserSessions removes every session of the user when the account is deleted.
	DeleteUserSessions(ctx context.Context, userID int64) (int64, error)
}

// SubmitRunningDataParams defines the parameters for submitting a batch of running data.
type SubmitRunningDataParams struct {
	UserID  int64
	Request *payload.RunningDataRequest
	// Now defaults to the usecase clock when zero.
	Now time.Time
}

const MaxListLimit = 100

var (
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidLimit       = fmt.Errorf("limit must be between 1 and %d", MaxListLimit)
	ErrInvalidSessionKey  = errors.New("session key is required")
	ErrSessionNotFound    = errors.New("running session not found")
	ErrStorageUnavailable = errors.New("running session storage is unavailable")
	ErrUnexpected         = errors.New("unexpected running session error")
)

type runningUsecase struct {
	sessionRepo repository.RunningSessionRepository
	validator   *telemetry.Validator
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewRunningUsecase(
	sessionRepo repository.RunningSessionRepository,
	validator *telemetry.Validator,
	logger *zerolog.Logger,
) RunningUsecase {
	return &runningUsecase{
		sessionRepo: sessionRepo,
		validator:   validator,
		logger:      logger,
		now:         time.Now,
	}
}

func (u *runningUsecase) SubmitRunningData(
	ctx context.Context,
	params SubmitRunningDataParams,
) (*payload.RunningDataResponse, error) {
	if params.UserID <= 0 {
		return nil, ErrInvalidUserID
	}

	now := params.Now
	if now.IsZero() {
		now = u.now()
	}

	if err := u.validator.Validate(params.Request, now); err != nil {
		return nil, err
	}

	req := params.Request
	sessionKey := telemetry.SessionKey(params.UserID, *req.SessionNum)

	session, err := u.sessionRepo.AppendFeatures(ctx, repository.AppendFeaturesParams{
		UserID:     params.UserID,
		SessionKey: sessionKey,
		SessionNum: *req.SessionNum,
		Features:   req.GeoData.Features,
	})
	if err != nil {
		u.logger.Error().
			Err(err).
			Int64("user_id", params.UserID).
			Str("session_key", sessionKey).
			Int("features", req.FeatureCount()).
			Msg("failed to append running data")

		return nil, classifyStorageError("append running data", err)
	}

	u.logger.Info().
		Int64("user_id", params.UserID).
		Str("session_key", sessionKey).
		Int("features", req.FeatureCount()).
		Int("stored_features", session.FeatureCount()).
		Msg("running data appended")

	return payload.NewSuccessResponse(
		req.FeatureCount(),
		req.TotalCoordinateCount(),
		telemetry.Summarize(req.GeoData.Features),
		now,
	), nil
}

func (u *runningUsecase) GetNextSessionNumber(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrInvalidUserID
	}

	latest, err := u.sessionRepo.GetLatestSessionNum(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 1, nil
		}

		return 0, classifyStorageError("get latest session number", err)
	}

	return latest + 1, nil
}

func (u *runningUsecase) ListUserSessions(
	ctx context.Context,
	userID int64,
	limit int,
) ([]*model.RunningSession, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	if limit <= 0 || limit > MaxListLimit {
		return nil, ErrInvalidLimit
	}

	sessions, err := u.sessionRepo.ListSessionsByUser(ctx, repository.ListSessionsParams{
		UserID: userID,
		Limit:  int64(limit),
	})
	if err != nil {
		return nil, classifyStorageError("list running sessions", err)
	}

	return sessions, nil
}

func (u *runningUsecase) GetSessionByKey(
	ctx context.Context,
	userID int64,
	sessionKey string,
) (*model.RunningSession, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	if strings.TrimSpace(sessionKey) == "" {
		return nil, ErrInvalidSessionKey
	}

	session, err := u.sessionRepo.GetSessionByUserAndKey(ctx, userID, sessionKey)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}

		return nil, classifyStorageError("get running session", err)
	}

	return session, nil
}

func (u *runningUsecase) DeleteUserSessions(ctx context.Context, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, ErrInvalidUserID
	}

	deleted, err := u.sessionRepo.DeleteSessionsByUser(ctx, userID)
	if err != nil {
		return 0, classifyStorageError("delete running sessions", err)
	}

	u.logger.Info().Int64("user_id", userID).Int64("deleted", deleted).Msg("running sessions deleted")

	return deleted, nil
}

// classifyStorageError wraps err with ErrStorageUnavailable when the store could
// not be reached or rejected the operation, and with ErrUnexpected otherwise.
func classifyStorageError(op string, err error) error {
	var serverErr mongo.ServerError

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, mongo.ErrClientDisconnected),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err),
		errors.As(err, &serverErr):
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrUnexpected, err)
	}
}
