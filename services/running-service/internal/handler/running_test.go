package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/payload"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/repository"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/telemetry"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/usecase"
	"github.com/vasapolrittideah/running-tracker-api/shared/middleware"
)

var testNow = time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)

type fakeRunningUsecase struct {
	submit     func(params usecase.SubmitRunningDataParams) (*payload.RunningDataResponse, error)
	nextNum    func(userID int64) (int, error)
	list       func(userID int64, limit int) ([]*model.RunningSession, error)
	getByKey   func(userID int64, sessionKey string) (*model.RunningSession, error)
	deleteAll  func(userID int64) (int64, error)
	lastUserID int64
}

func (f *fakeRunningUsecase) SubmitRunningData(
	_ context.Context,
	params usecase.SubmitRunningDataParams,
) (*payload.RunningDataResponse, error) {
	f.lastUserID = params.UserID
	return f.submit(params)
}

func (f *fakeRunningUsecase) GetNextSessionNumber(_ context.Context, userID int64) (int, error) {
	f.lastUserID = userID
	return f.nextNum(userID)
}

func (f *fakeRunningUsecase) ListUserSessions(
	_ context.Context,
	userID int64,
	limit int,
) ([]*model.RunningSession, error) {
	f.lastUserID = userID
	return f.list(userID, limit)
}

func (f *fakeRunningUsecase) GetSessionByKey(
	_ context.Context,
	userID int64,
	sessionKey string,
) (*model.RunningSession, error) {
	f.lastUserID = userID
	return f.getByKey(userID, sessionKey)
}

func (f *fakeRunningUsecase) DeleteUserSessions(_ context.Context, userID int64) (int64, error) {
	f.lastUserID = userID
	return f.deleteAll(userID)
}

// fakeAuth authenticates every request as userID.
func fakeAuth(userID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
		})
	}
}

func newTestRouter(uc usecase.RunningUsecase, userID int64) http.Handler {
	logger := zerolog.Nop()
	h := NewRunningHTTPHandler(uc, &logger)
	h.now = func() time.Time { return testNow }

	return NewRouter(h, fakeAuth(userID), &logger)
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

const validBody = `{
	"sessionNum": 1,
	"geoData": {
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"timestampStart": 1777620600000, "timestampEnd": 1777620610000, "bpm": 150, "pace": 5.5},
			"geometry": {"type": "LineString", "coordinates": [[126.978, 37.567], [126.979, 37.568]]}
		}]
	}
}`

func TestSubmitRunningDataSuccess(t *testing.T) {
	uc := &fakeRunningUsecase{
		submit: func(params usecase.SubmitRunningDataParams) (*payload.RunningDataResponse, error) {
			assert.Equal(t, 1, *params.Request.SessionNum)
			assert.Equal(t, 1, params.Request.FeatureCount())
			assert.Equal(t, 2, params.Request.TotalCoordinateCount())
			assert.Equal(t, testNow, params.Now)

			return payload.NewSuccessResponse(1, 2, telemetry.Summarize(params.Request.GeoData.Features), params.Now), nil
		},
	}

	rec := do(t, newTestRouter(uc, 42), http.MethodPost, "/api/running/session", validBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), uc.lastUserID)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, payload.StatusSuccess, body["status"])
	assert.EqualValues(t, 1, body["savedFeatureCount"])
	assert.EqualValues(t, 2, body["totalCoordinateCount"])

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 150, summary["avgBpm"])
	assert.EqualValues(t, 10, summary["durationSeconds"])
}

func TestSubmitRunningDataErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{
			name:       "malformed json",
			body:       `{"sessionNum": `,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "trailing data",
			body:       validBody + `{"sessionNum": 2}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "validation error",
			body:       strings.Replace(validBody, `"sessionNum": 1`, `"sessionNum": 0`, 1),
			err:        &telemetry.ValidationError{Field: "sessionNum", Message: "sessionNum must be 1 or greater"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid user",
			body:       validBody,
			err:        usecase.ErrInvalidUserID,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "storage unavailable",
			body:       validBody,
			err:        fmt.Errorf("append running data: %w: %w", usecase.ErrStorageUnavailable, mongo.ErrClientDisconnected),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unexpected",
			body:       validBody,
			err:        fmt.Errorf("append running data: %w: boom", usecase.ErrUnexpected),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			uc := &fakeRunningUsecase{
				submit: func(usecase.SubmitRunningDataParams) (*payload.RunningDataResponse, error) {
					called = true
					return nil, tt.err
				},
			}

			rec := do(t, newTestRouter(uc, 1), http.MethodPost, "/api/running/session", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.err != nil, called)

			body := decodeEnvelope(t, rec)
			assert.Equal(t, payload.StatusError, body["status"])
			assert.NotEmpty(t, body["message"])
			assert.Nil(t, body["savedFeatureCount"])
			assert.Nil(t, body["totalCoordinateCount"])
			assert.Nil(t, body["summary"])
			assert.Equal(t, testNow.Format(time.RFC3339), body["timestamp"])
		})
	}
}

func TestSubmitRunningDataValidationMessage(t *testing.T) {
	uc := &fakeRunningUsecase{
		submit: func(usecase.SubmitRunningDataParams) (*payload.RunningDataResponse, error) {
			return nil, &telemetry.ValidationError{Field: "geoData.features", Message: "too many features"}
		},
	}

	rec := do(t, newTestRouter(uc, 1), http.MethodPost, "/api/running/session", validBody)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "geoData.features: too many features", decodeEnvelope(t, rec)["message"])
}

func TestSubmitRunningDataWithoutUser(t *testing.T) {
	logger := zerolog.Nop()
	h := NewRunningHTTPHandler(&fakeRunningUsecase{}, &logger)
	noAuth := func(next http.Handler) http.Handler { return next }

	rec := do(t, NewRouter(h, noAuth, &logger), http.MethodPost, "/api/running/session", validBody)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetNextSessionNumber(t *testing.T) {
	uc := &fakeRunningUsecase{
		nextNum: func(int64) (int, error) { return 8, nil },
	}

	rec := do(t, newTestRouter(uc, 3), http.MethodGet, "/api/running/next-session", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "8", rec.Body.String())
	assert.Equal(t, int64(3), uc.lastUserID)
}

func TestListUserSessions(t *testing.T) {
	sessions := []*model.RunningSession{
		{UserID: 3, SessionKey: "3-2", SessionNum: 2, CreatedAt: testNow},
		{UserID: 3, SessionKey: "3-1", SessionNum: 1, CreatedAt: testNow.Add(-time.Hour)},
	}

	t.Run("default limit", func(t *testing.T) {
		uc := &fakeRunningUsecase{
			list: func(_ int64, limit int) ([]*model.RunningSession, error) {
				assert.Equal(t, defaultListLimit, limit)
				return sessions, nil
			},
		}

		rec := do(t, newTestRouter(uc, 3), http.MethodGet, "/api/running/sessions", "")

		require.Equal(t, http.StatusOK, rec.Code)

		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "3-2", got[0]["sessionKey"])
	})

	t.Run("explicit limit", func(t *testing.T) {
		uc := &fakeRunningUsecase{
			list: func(_ int64, limit int) ([]*model.RunningSession, error) {
				assert.Equal(t, 1, limit)
				return sessions[:1], nil
			},
		}

		rec := do(t, newTestRouter(uc, 3), http.MethodGet, "/api/running/sessions?limit=1", "")

		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non numeric limit", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeRunningUsecase{}, 3), http.MethodGet, "/api/running/sessions?limit=ten", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("limit out of range", func(t *testing.T) {
		uc := &fakeRunningUsecase{
			list: func(int64, int) ([]*model.RunningSession, error) { return nil, usecase.ErrInvalidLimit },
		}

		rec := do(t, newTestRouter(uc, 3), http.MethodGet, "/api/running/sessions?limit=500", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSessionByKey(t *testing.T) {
	uc := &fakeRunningUsecase{
		getByKey: func(_ int64, sessionKey string) (*model.RunningSession, error) {
			if sessionKey != "3-1" {
				return nil, usecase.ErrSessionNotFound
			}
			return &model.RunningSession{UserID: 3, SessionKey: "3-1", SessionNum: 1}, nil
		},
	}
	router := newTestRouter(uc, 3)

	rec := do(t, router, http.MethodGet, "/api/running/session/3-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3-1", decodeEnvelope(t, rec)["sessionKey"])

	rec = do(t, router, http.MethodGet, "/api/running/session/3-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUserSessions(t *testing.T) {
	uc := &fakeRunningUsecase{
		deleteAll: func(int64) (int64, error) { return 4, nil },
	}

	rec := do(t, newTestRouter(uc, 3), http.MethodDelete, "/api/running/sessions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deletedCount": 4}`, rec.Body.String())
}

func TestReadPathStorageUnavailable(t *testing.T) {
	uc := &fakeRunningUsecase{
		nextNum: func(int64) (int, error) {
			return 0, fmt.Errorf("get latest session number: %w: %w", usecase.ErrStorageUnavailable, context.DeadlineExceeded)
		},
	}

	rec := do(t, newTestRouter(uc, 3), http.MethodGet, "/api/running/next-session", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthIsUnauthenticated(t *testing.T) {
	logger := zerolog.Nop()
	h := NewRunningHTTPHandler(&fakeRunningUsecase{}, &logger)
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	router := NewRouter(h, deny, &logger)

	rec := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = do(t, router, http.MethodGet, "/api/running/next-session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// memoryRepository appends to in-memory sessions so the real usecase can be
// driven through the router.
type memoryRepository struct {
	sessions map[string]*model.RunningSession
}

func (m *memoryRepository) AppendFeatures(
	_ context.Context,
	params repository.AppendFeaturesParams,
) (*model.RunningSession, error) {
	session, ok := m.sessions[params.SessionKey]
	if !ok {
		session = &model.RunningSession{
			UserID:     params.UserID,
			SessionKey: params.SessionKey,
			SessionNum: params.SessionNum,
			CreatedAt:  testNow,
		}
		m.sessions[params.SessionKey] = session
	}
	session.GeoDataFeatures = append(session.GeoDataFeatures, params.Features...)

	return session, nil
}

func (m *memoryRepository) GetSessionByUserAndKey(
	_ context.Context,
	userID int64,
	sessionKey string,
) (*model.RunningSession, error) {
	session, ok := m.sessions[sessionKey]
	if !ok || session.UserID != userID {
		return nil, mongo.ErrNoDocuments
	}
	return session, nil
}

func (m *memoryRepository) ListSessionsByUser(
	context.Context,
	repository.ListSessionsParams,
) ([]*model.RunningSession, error) {
	return nil, nil
}

func (m *memoryRepository) GetLatestSessionNum(context.Context, int64) (int, error) {
	return 0, mongo.ErrNoDocuments
}

func (m *memoryRepository) DeleteSessionsByUser(context.Context, int64) (int64, error) {
	return 0, nil
}

func TestSubmitThroughRealUsecase(t *testing.T) {
	logger := zerolog.Nop()
	validator, err := telemetry.NewValidator(&logger)
	require.NoError(t, err)

	repo := &memoryRepository{sessions: map[string]*model.RunningSession{}}
	router := newTestRouter(usecase.NewRunningUsecase(repo, validator, &logger), 1)

	rec := do(t, router, http.MethodPost, "/api/running/session", validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.sessions["1-1"].GeoDataFeatures, 1)

	rec = do(t, router, http.MethodPost, "/api/running/session", validBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.sessions["1-1"].GeoDataFeatures, 2)

	rec = do(t, router, http.MethodPost, "/api/running/session",
		strings.Replace(validBody, `"sessionNum": 1`, `"sessionNum": 0`, 1))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, payload.StatusError, decodeEnvelope(t, rec)["status"])
	assert.Len(t, repo.sessions, 1)
	assert.Len(t, repo.sessions["1-1"].GeoDataFeatures, 2)
}

func TestSubmitRunningDataBodyTooLarge(t *testing.T) {
	logger := zerolog.Nop()
	called := false
	h := NewRunningHTTPHandler(&fakeRunningUsecase{
		submit: func(usecase.SubmitRunningDataParams) (*payload.RunningDataResponse, error) {
			called = true
			return nil, nil
		},
	}, &logger)
	h.now = func() time.Time { return testNow }
	h.maxBodyBytes = 64

	rec := do(t, NewRouter(h, fakeAuth(1), &logger), http.MethodPost, "/api/running/session", validBody)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
	assert.Equal(t, payload.StatusError, decodeEnvelope(t, rec)["status"])
}

func TestSubmitNullCoordinateThroughRealUsecase(t *testing.T) {
	logger := zerolog.Nop()
	validator, err := telemetry.NewValidator(&logger)
	require.NoError(t, err)

	repo := &memoryRepository{sessions: map[string]*model.RunningSession{}}
	router := newTestRouter(usecase.NewRunningUsecase(repo, validator, &logger), 1)

	for _, coordinates := range []string{`[[null, 37.5]]`, `[[126.9, null]]`} {
		body := strings.Replace(validBody, `[[126.978, 37.567], [126.979, 37.568]]`, coordinates, 1)
		require.Contains(t, body, coordinates)

		rec := do(t, router, http.MethodPost, "/api/running/session", body)

		require.Equal(t, http.StatusBadRequest, rec.Code, coordinates)
		message, _ := decodeEnvelope(t, rec)["message"].(string)
		assert.Contains(t, message, "pair of numbers")
	}

	assert.Empty(t, repo.sessions)
}
