package telemetry

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/payload"
)

const (
	MaxSessionNum      = 999_999
	MaxFeaturesPerCall = 1000

	// MaxSegmentDuration is the longest time window a single segment may cover, in milliseconds.
	MaxSegmentDuration int64 = 300_000

	clockSkewTolerance = time.Hour
)

// Coordinates outside this box are accepted but logged.
const (
	regionMinLongitude = 124.0
	regionMaxLongitude = 132.0
	regionMinLatitude  = 33.0
	regionMaxLatitude  = 39.0
)

// ValidationError describes the first rule an incoming batch violated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return e.Field + ": " + e.Message
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validator checks running data batches before they reach the store.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
	logger   *zerolog.Logger
}

// NewValidator creates a Validator whose messages are translated to English
// and refer to fields by their JSON names.
func NewValidator(logger *zerolog.Logger) (*Validator, error) {
	english := en.New()
	uni := ut.New(english, english)

	trans, found := uni.GetTranslator("en")
	if !found {
		return nil, errors.New("english translator not found")
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, fmt.Errorf("failed to register validator translations: %w", err)
	}

	return &Validator{
		validate: validate,
		trans:    trans,
		logger:   logger,
	}, nil
}

// Validate returns nil when the batch may be stored, or a *ValidationError for
// the first violated rule. now is only used for the advisory clock-skew check.
func (v *Validator) Validate(req *payload.RunningDataRequest, now time.Time) error {
	if req == nil {
		return newValidationError("", "request body is required")
	}

	if err := v.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fieldPath(fe), Message: fe.Translate(v.trans)}
		}

		return fmt.Errorf("failed to validate running data: %w", err)
	}

	sessionNum := *req.SessionNum
	features := req.GeoData.Features

	if err := v.validateGeometries(sessionNum, features); err != nil {
		return err
	}

	return v.validateTimestamps(sessionNum, features, now)
}

func (v *Validator) validateGeometries(sessionNum int, features []model.Feature) error {
	outside := 0
	var firstLon, firstLat float64

	for i := range features {
		field := fmt.Sprintf("geoData.features[%d].geometry", i)

		geometry := features[i].Geometry
		if geometry == nil {
			return newValidationError(field, "geometry is required")
		}
		if len(geometry.Coordinates) == 0 {
			return newValidationError(field+".coordinates", "coordinates must not be empty")
		}

		for j, coord := range geometry.Coordinates {
			coordField := fmt.Sprintf("%s.coordinates[%d]", field, j)

			if len(coord) != 2 || math.IsNaN(coord[0]) || math.IsNaN(coord[1]) {
				return newValidationError(coordField, "coordinate must be a [longitude, latitude] pair of numbers")
			}

			lon, lat := coord[0], coord[1]
			if lon < -180 || lon > 180 {
				return newValidationError(coordField, "longitude %.6f is out of range (-180 to 180)", lon)
			}
			if lat < -90 || lat > 90 {
				return newValidationError(coordField, "latitude %.6f is out of range (-90 to 90)", lat)
			}

			if !insideServiceRegion(lon, lat) {
				if outside == 0 {
					firstLon, firstLat = lon, lat
				}
				outside++
			}
		}
	}

	if outside > 0 {
		v.logger.Warn().
			Int("session_num", sessionNum).
			Int("coordinates", outside).
			Float64("longitude", firstLon).
			Float64("latitude", firstLat).
			Msg("coordinates outside the expected service region")
	}

	return nil
}

func (v *Validator) validateTimestamps(sessionNum int, features []model.Feature, now time.Time) error {
	earliest := now.Add(-clockSkewTolerance).UnixMilli()
	latest := now.Add(clockSkewTolerance).UnixMilli()

	skewed := 0
	var firstSkewed int64

	for i := range features {
		field := fmt.Sprintf("geoData.features[%d].properties", i)

		props := features[i].Properties
		if props == nil {
			return newValidationError(field, "properties are required")
		}
		if props.TimestampStart == nil || props.TimestampEnd == nil {
			return newValidationError(field, "timestampStart and timestampEnd are required")
		}

		start, end := *props.TimestampStart, *props.TimestampEnd
		if start >= end {
			return newValidationError(field, "timestampStart must be before timestampEnd")
		}
		if end-start > MaxSegmentDuration {
			return newValidationError(field, "segment covers %d ms, maximum is %d ms", end-start, MaxSegmentDuration)
		}

		if start < earliest || start > latest {
			if skewed == 0 {
				firstSkewed = start
			}
			skewed++
		}
	}

	if skewed > 0 {
		v.logger.Warn().
			Int("session_num", sessionNum).
			Int("features", skewed).
			Int64("timestamp_start", firstSkewed).
			Int64("now", now.UnixMilli()).
			Msg("segment timestamps more than an hour away from server time")
	}

	return nil
}

func insideServiceRegion(lon, lat float64) bool {
	return lon >= regionMinLongitude && lon <= regionMaxLongitude &&
		lat >= regionMinLatitude && lat <= regionMaxLatitude
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}

	return ns
}
