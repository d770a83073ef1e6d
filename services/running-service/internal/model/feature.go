package model

import (
	"encoding/json"
	"math"
)

const (
	FeatureCollectionType = "FeatureCollection"
	FeatureType           = "Feature"
	LineStringType        = "LineString"
)

// FeatureCollection is the GeoJSON envelope the client sends its segments in.
type FeatureCollection struct {
	Type     string    `bson:"type"     json:"type"`
	Features []Feature `bson:"features" json:"features" validate:"required,min=1,max=1000"`
}

// Feature is a single telemetry segment covering a short time window.
type Feature struct {
	Type       string      `bson:"type"       json:"type"`
	Properties *Properties `bson:"properties" json:"properties"`
	Geometry   *Geometry   `bson:"geometry"   json:"geometry"`
}

// CoordinateCount returns the number of coordinates in the feature geometry.
func (f *Feature) CoordinateCount() int {
	if f.Geometry == nil {
		return 0
	}

	return len(f.Geometry.Coordinates)
}

// Properties holds the timestamps and optional metrics of a segment.
// Metrics the client did not measure are nil and are not stored.
type Properties struct {
	TimestampStart *int64 `bson:"timestampStart" json:"timestampStart"` // epoch milliseconds
	TimestampEnd   *int64 `bson:"timestampEnd"   json:"timestampEnd"`   // epoch milliseconds

	Height  *float64 `bson:"height,omitempty"  json:"height"`  // m
	Bpm     *int     `bson:"bpm,omitempty"     json:"bpm"`     // beats per minute
	Pace    *float64 `bson:"pace,omitempty"    json:"pace"`    // km/h
	Power   *int     `bson:"power,omitempty"   json:"power"`   // W
	Cadence *int     `bson:"cadence,omitempty" json:"cadence"` // steps per minute

	MinVerticalAmplitude *float64 `bson:"minVerticalAmplitude,omitempty" json:"minVerticalAmplitude"` // cm
	MaxVerticalAmplitude *float64 `bson:"maxVerticalAmplitude,omitempty" json:"maxVerticalAmplitude"` // cm
	MinGct               *int     `bson:"minGct,omitempty"               json:"minGct"`               // ms
	MaxGct               *int     `bson:"maxGct,omitempty"               json:"maxGct"`               // ms
	Stride               *float64 `bson:"stride,omitempty"               json:"stride"`               // m
}

// Geometry is a GeoJSON LineString with [longitude, latitude] pairs.
type Geometry struct {
	Type        string      `bson:"type"        json:"type"`
	Coordinates []Position `bson:"coordinates" json:"coordinates"`
}

// Position is a [longitude, latitude] pair. A JSON null component decodes to
// NaN so validation rejects it instead of storing 0.
type Position []float64

func (p *Position) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw == nil {
		*p = nil
		return nil
	}

	pos := make(Position, len(raw))
	for i, v := range raw {
		if v == nil {
			pos[i] = math.NaN()
			continue
		}
		pos[i] = *v
	}
	*p = pos

	return nil
}
