package telemetry

import (
	"math"

	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/model"
	"github.com/vasapolrittideah/running-tracker-api/services/running-service/internal/payload"
)

// Summarize aggregates a validated batch. Metrics missing from a segment are
// skipped instead of counted as zero. Heights default to 0 when no segment
// carries one. It returns nil for an empty batch.
func Summarize(features []model.Feature) *payload.RunningSessionSummary {
	if len(features) == 0 {
		return nil
	}

	var (
		start, end int64
		haveTime   bool
		paceSum    float64
		paceCount  int
		bpmSum     int64
		bpmCount   int
		minHeight  float64
		maxHeight  float64
		heightSeen bool
	)

	for i := range features {
		props := features[i].Properties
		if props == nil {
			continue
		}

		if props.TimestampStart != nil && props.TimestampEnd != nil {
			if !haveTime || *props.TimestampStart < start {
				start = *props.TimestampStart
			}
			if !haveTime || *props.TimestampEnd > end {
				end = *props.TimestampEnd
			}
			haveTime = true
		}

		if props.Pace != nil {
			paceSum += *props.Pace
			paceCount++
		}

		if props.Bpm != nil {
			bpmSum += int64(*props.Bpm)
			bpmCount++
		}

		if props.Height != nil {
			h := *props.Height
			if !heightSeen || h < minHeight {
				minHeight = h
			}
			if !heightSeen || h > maxHeight {
				maxHeight = h
			}
			heightSeen = true
		}
	}

	summary := &payload.RunningSessionSummary{
		SessionStartTime: start,
		SessionEndTime:   end,
		DurationSeconds:  (end - start) / 1000,
		MinHeight:        minHeight,
		MaxHeight:        maxHeight,
	}

	if paceCount > 0 {
		summary.AvgPaceKmh = paceSum / float64(paceCount)
	}
	if bpmCount > 0 {
		summary.AvgBpm = int(math.Round(float64(bpmSum) / float64(bpmCount)))
	}

	return summary
}
