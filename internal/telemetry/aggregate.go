// internal/telemetry/aggregate.go
package telemetry

import (
	"context"
	"sort"
	"time"
)

// Aggregate groups the sensor's readings in [from, to] into buckets
// truncated to the granularity boundary and computes count/min/max/avg per
// bucket. Timestamps are normalized to UTC before bucketing so callers in
// different offsets never get silently shifted or empty windows. Buckets
// with no readings are omitted; the result is ordered ascending by bucket
// start.
func (s *Service) Aggregate(ctx context.Context, sensorID string, from, to time.Time, g Granularity) ([]Bucket, error) {
	if !g.Valid() {
		return nil, &ValidationError{Field: "granularity", Reason: "must be minute, hour or day"}
	}
	if _, err := s.GetSensor(ctx, sensorID); err != nil {
		return nil, err
	}

	readings, err := s.store.QueryReadings(ctx, ReadingQuery{
		SensorID: sensorID,
		From:     from.UTC(),
		To:       to.UTC(),
	})
	if err != nil {
		return nil, err
	}

	byStart := make(map[time.Time]*Bucket)
	for _, r := range readings {
		start := g.Truncate(r.Timestamp)
		b, ok := byStart[start]
		if !ok {
			b = &Bucket{Start: start, Min: r.Value, Max: r.Value}
			byStart[start] = b
		}
		if r.Value < b.Min {
			b.Min = r.Value
		}
		if r.Value > b.Max {
			b.Max = r.Value
		}
		// Avg accumulates the sum until the final pass below.
		b.Avg += r.Value
		b.Count++
	}

	out := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		b.Avg /= float64(b.Count)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
