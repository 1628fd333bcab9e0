// internal/store/memory.go

// Package store provides the backends implementing the telemetry
// repository contracts: an in-process memory store and a Postgres store
// with an optional Redis hot cache.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

// Memory is an in-process telemetry.Store keeping everything behind one
// mutex. It is the default backend for tests and single-node deployments.
// TouchSensor, MarkOffline and InsertActiveAlert hold the lock across their
// read and write, which gives them the conditional-update semantics the
// contracts require.
type Memory struct {
	mu       sync.RWMutex
	sensors  map[string]telemetry.Sensor
	readings map[string][]telemetry.Reading // sensorID -> sorted by Timestamp asc
	alerts   map[string]telemetry.Alert
	// active indexes the dedup key of every active alert.
	active map[string]string // dedup key -> alert id
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sensors:  make(map[string]telemetry.Sensor),
		readings: make(map[string][]telemetry.Reading),
		alerts:   make(map[string]telemetry.Alert),
		active:   make(map[string]string),
	}
}

func (m *Memory) InsertSensor(_ context.Context, s telemetry.Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sensors[s.ID]; ok {
		return telemetry.ErrDuplicate
	}
	m.sensors[s.ID] = s
	return nil
}

func (m *Memory) GetSensor(_ context.Context, id string) (telemetry.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[id]
	if !ok {
		return telemetry.Sensor{}, telemetry.ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSensors(_ context.Context, f telemetry.SensorFilter) ([]telemetry.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]telemetry.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) TouchSensor(_ context.Context, id string, at time.Time, value float64) (telemetry.Sensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[id]
	if !ok {
		return telemetry.Sensor{}, telemetry.ErrNotFound
	}
	if s.LastSeen == nil || at.After(*s.LastSeen) {
		t := at
		s.LastSeen = &t
		v := value
		s.LastReading = &v
	}
	if s.Status != telemetry.SensorMaintenance {
		s.Status = telemetry.SensorOnline
	}
	m.sensors[id] = s
	return s, nil
}

func (m *Memory) MarkOffline(_ context.Context, id string, seenBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sensors[id]
	if !ok {
		return false, telemetry.ErrNotFound
	}
	if s.Status == telemetry.SensorMaintenance {
		return false, nil
	}
	if s.LastSeen != nil && !s.LastSeen.Before(seenBefore) {
		return false, nil
	}
	s.Status = telemetry.SensorOffline
	m.sensors[id] = s
	return true, nil
}

func (m *Memory) StaleSensors(_ context.Context, q telemetry.StaleQuery) ([]telemetry.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []telemetry.Sensor
	for _, s := range m.sensors {
		if s.Status == telemetry.SensorMaintenance {
			continue
		}
		if s.LastSeen == nil || s.LastSeen.Before(q.SeenBefore) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) AppendReading(_ context.Context, r telemetry.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.readings[r.SensorID]
	// Readings usually arrive in order; insert sorted for the ones that
	// do not.
	i := sort.Search(len(arr), func(i int) bool { return arr[i].Timestamp.After(r.Timestamp) })
	arr = append(arr, telemetry.Reading{})
	copy(arr[i+1:], arr[i:])
	arr[i] = r
	m.readings[r.SensorID] = arr
	return nil
}

func (m *Memory) QueryReadings(_ context.Context, q telemetry.ReadingQuery) ([]telemetry.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	arr := m.readings[q.SensorID]
	out := make([]telemetry.Reading, 0, len(arr))
	for _, r := range arr {
		if r.Timestamp.Before(q.From) || r.Timestamp.After(q.To) {
			continue
		}
		out = append(out, r)
	}
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) InsertActiveAlert(_ context.Context, a telemetry.Alert) (telemetry.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := a.DedupKey()
	if existingID, ok := m.active[key]; ok {
		return m.alerts[existingID], false, nil
	}
	m.alerts[a.ID] = a
	m.active[key] = a.ID
	return a, true, nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (telemetry.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return telemetry.Alert{}, telemetry.ErrNotFound
	}
	return a, nil
}

func (m *Memory) UpdateAlert(_ context.Context, a telemetry.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.ID]; !ok {
		return telemetry.ErrNotFound
	}
	m.alerts[a.ID] = a
	if a.Status != telemetry.AlertActive {
		key := a.DedupKey()
		if m.active[key] == a.ID {
			delete(m.active, key)
		}
	}
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, f telemetry.AlertFilter) ([]telemetry.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]telemetry.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.SubjectID != "" && a.SensorID != f.SubjectID && a.AssetID != f.SubjectID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
