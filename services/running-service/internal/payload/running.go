package payload

import (
	"time"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

type RunningDataRequest struct {
	SessionNum *int                     `json:"sessionNum" validate:"required,min=1,max=999999"`
	GeoData    *model.FeatureCollection `json:"geoData"    validate:"required"`
}

// FeatureCount returns the number of features in the request.
func (r *RunningDataRequest) FeatureCount() int {
	if r.GeoData == nil {
		return 0
	}

	return len(r.GeoData.Features)
}

// TotalCoordinateCount returns the number of coordinates across all features.
func (r *RunningDataRequest) TotalCoordinateCount() int {
	if r.GeoData == nil {
		return 0
	}

	total := 0
	for i := range r.GeoData.Features {
		total += r.GeoData.Features[i].CoordinateCount()
	}

	return total
}

type RunningDataResponse struct {
	Status               string                 `json:"status"`
	Message              string                 `json:"message"`
	SavedFeatureCount    *int                   `json:"savedFeatureCount"`
	TotalCoordinateCount *int                   `json:"totalCoordinateCount"`
	Timestamp            time.Time              `json:"timestamp"`
	Summary              *RunningSessionSummary `json:"summary"`
}

// NewSuccessResponse builds the envelope returned after a batch was stored.
func NewSuccessResponse(
	featureCount, coordinateCount int,
	summary *RunningSessionSummary,
	now time.Time,
) *RunningDataResponse {
	return &RunningDataResponse{
		Status:               StatusSuccess,
		Message:              "running data saved",
		SavedFeatureCount:    &featureCount,
		TotalCoordinateCount: &coordinateCount,
		Timestamp:            now,
		Summary:              summary,
	}
}

// NewErrorResponse builds the envelope returned for a rejected or failed submission.
func NewErrorResponse(message string, now time.Time) *RunningDataResponse {
	return &RunningDataResponse{
		Status:    StatusError,
		Message:   message,
		Timestamp: now,
	}
}

// RunningSessionSummary is computed over a single submitted batch and is never stored.
type RunningSessionSummary struct {
	SessionStartTime int64   `json:"sessionStartTime"`
	SessionEndTime   int64   `json:"sessionEndTime"`
	DurationSeconds  int64   `json:"durationSeconds"`
	AvgPaceKmh       float64 `json:"avgPaceKmh"`
	AvgBpm           int     `json:"avgBpm"`
	MaxHeight        float64 `json:"maxHeight"`
	MinHeight        float64 `json:"minHeight"`
}

type DeleteSessionsResponse struct {
	DeletedCount int64 `json:"deletedCount"`
}
