// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vku-open-source-2025/openinfra-sub001/internal/telemetry"
)

const latestReadingTTL = 24 * time.Hour

// Postgres is the durable telemetry.Store. The conditional writes the
// contracts require are single SQL statements, so concurrent ingests and
// sweeps for the same sensor never lose updates. An optional Redis client
// mirrors the latest value per sensor for dashboard-style consumers.
type Postgres struct {
	pool  *pgxpool.Pool
	cache *redis.Client // nil = no hot cache
}

// NewPostgres connects the pool and, when addr is non-empty, the Redis
// cache. Both connections are verified before use.
func NewPostgres(ctx context.Context, url, redisAddr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	var cache *redis.Client
	if redisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := cache.Ping(ctx).Err(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	return &Postgres{pool: pool, cache: cache}, nil
}

// Close releases both connections.
func (p *Postgres) Close() {
	p.pool.Close()
	if p.cache != nil {
		_ = p.cache.Close()
	}
}

// EnsureSchema creates the tables and the partial unique index backing the
// active-alert dedup, if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaDDL)
	return err
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sensors (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	asset_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	sampling_interval_seconds BIGINT NOT NULL DEFAULT 0,
	connectivity TEXT NOT NULL DEFAULT '',
	thresholds JSONB NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	last_seen TIMESTAMPTZ,
	last_reading DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sensor_readings (
	id TEXT PRIMARY KEY,
	sensor_id TEXT NOT NULL REFERENCES sensors(id),
	asset_id TEXT NOT NULL DEFAULT '',
	ts TIMESTAMPTZ NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	unit TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL,
	status TEXT NOT NULL,
	threshold_exceeded BOOLEAN NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS sensor_readings_sensor_ts ON sensor_readings (sensor_id, ts);
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	source TEXT NOT NULL,
	sensor_id TEXT NOT NULL DEFAULT '',
	asset_id TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	trigger_value DOUBLE PRECISION,
	threshold_value DOUBLE PRECISION,
	condition TEXT NOT NULL DEFAULT '',
	dedup_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	acknowledged_at TIMESTAMPTZ,
	acknowledged_by TEXT NOT NULL DEFAULT '',
	resolved_at TIMESTAMPTZ,
	resolved_by TEXT NOT NULL DEFAULT '',
	resolution_note TEXT NOT NULL DEFAULT '',
	dismissed_at TIMESTAMPTZ,
	dismissed_by TEXT NOT NULL DEFAULT '',
	work_order_created BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_dedup ON alerts (dedup_key) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS alerts_status_severity ON alerts (status, severity);
`

func (p *Postgres) InsertSensor(ctx context.Context, s telemetry.Sensor) error {
	thresholds, err := json.Marshal(s.Thresholds)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sensors (id, code, asset_id, type, unit, sampling_interval_seconds,
			connectivity, thresholds, status, last_seen, last_reading, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.ID, s.Code, s.AssetID, s.Type, s.Unit, int64(s.SamplingInterval.Seconds()),
		s.Connectivity, thresholds, s.Status, s.LastSeen, s.LastReading, s.CreatedAt)
	if isUniqueViolation(err) {
		return telemetry.ErrDuplicate
	}
	return err
}

const sensorColumns = `id, code, asset_id, type, unit, sampling_interval_seconds,
	connectivity, thresholds, status, last_seen, last_reading, created_at`

func (p *Postgres) GetSensor(ctx context.Context, id string) (telemetry.Sensor, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+sensorColumns+` FROM sensors WHERE id = $1`, id)
	return scanSensor(row)
}

func (p *Postgres) ListSensors(ctx context.Context, f telemetry.SensorFilter) ([]telemetry.Sensor, error) {
	query := `SELECT ` + sensorColumns + ` FROM sensors`
	args := []any{}
	if f.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY code`
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSensors(rows)
}

func (p *Postgres) TouchSensor(ctx context.Context, id string, at time.Time, value float64) (telemetry.Sensor, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE sensors SET
			last_reading = CASE WHEN last_seen IS NULL OR last_seen <= $2 THEN $3 ELSE last_reading END,
			last_seen = GREATEST(COALESCE(last_seen, $2), $2),
			status = CASE WHEN status = 'maintenance' THEN status ELSE 'online' END
		WHERE id = $1
		RETURNING `+sensorColumns, id, at, value)
	return scanSensor(row)
}

func (p *Postgres) MarkOffline(ctx context.Context, id string, seenBefore time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE sensors SET status = 'offline'
		WHERE id = $1 AND status <> 'maintenance'
			AND (last_seen IS NULL OR last_seen < $2)`, id, seenBefore)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) StaleSensors(ctx context.Context, q telemetry.StaleQuery) ([]telemetry.Sensor, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+sensorColumns+` FROM sensors
		WHERE status <> 'maintenance' AND (last_seen IS NULL OR last_seen < $1)
		ORDER BY code`, q.SeenBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSensors(rows)
}

func (p *Postgres) AppendReading(ctx context.Context, r telemetry.Reading) error {
	var metadata []byte
	if r.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(r.Metadata); err != nil {
			return err
		}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sensor_readings (id, sensor_id, asset_id, ts, value, unit,
			quality, status, threshold_exceeded, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.SensorID, r.AssetID, r.Timestamp, r.Value, r.Unit,
		r.Quality, r.Status, r.ThresholdExceeded, metadata)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	if p.cache != nil {
		key := "sensor:last:" + r.SensorID
		val := strconv.FormatFloat(r.Value, 'g', -1, 64)
		// Losing the hot-cache write is tolerable; the reading is durable.
		_ = p.cache.Set(ctx, key, val, latestReadingTTL).Err()
	}
	return nil
}

func (p *Postgres) QueryReadings(ctx context.Context, q telemetry.ReadingQuery) ([]telemetry.Reading, error) {
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	query := `
		SELECT id, sensor_id, asset_id, ts, value, unit, quality, status, threshold_exceeded, metadata
		FROM sensor_readings
		WHERE sensor_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ` + order
	args := []any{q.SensorID, q.From, q.To}
	if q.Limit > 0 {
		query += ` LIMIT $4`
		args = append(args, q.Limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Reading
	for rows.Next() {
		var r telemetry.Reading
		var metadata []byte
		if err := rows.Scan(&r.ID, &r.SensorID, &r.AssetID, &r.Timestamp, &r.Value,
			&r.Unit, &r.Quality, &r.Status, &r.ThresholdExceeded, &metadata); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertActiveAlert(ctx context.Context, a telemetry.Alert) (telemetry.Alert, bool, error) {
	key := a.DedupKey()
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO alerts (id, code, source, sensor_id, asset_id, type, severity, status,
			message, trigger_value, threshold_value, condition, dedup_key, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (dedup_key) WHERE status = 'active' DO NOTHING`,
		a.ID, a.Code, a.Source, a.SensorID, a.AssetID, a.Type, a.Severity, a.Status,
		a.Message, a.TriggerValue, a.ThresholdValue, a.Condition, key, a.CreatedAt)
	if err != nil {
		return telemetry.Alert{}, false, err
	}
	if tag.RowsAffected() > 0 {
		return a, true, nil
	}
	row := p.pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alerts
		WHERE dedup_key = $1 AND status = 'active'`, key)
	existing, err := scanAlert(row)
	if err != nil {
		return telemetry.Alert{}, false, err
	}
	return existing, false, nil
}

const alertColumns = `id, code, source, sensor_id, asset_id, type, severity, status,
	message, trigger_value, threshold_value, condition, created_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_note,
	dismissed_at, dismissed_by, work_order_created`

func (p *Postgres) GetAlert(ctx context.Context, id string) (telemetry.Alert, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (p *Postgres) UpdateAlert(ctx context.Context, a telemetry.Alert) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE alerts SET status = $2,
			acknowledged_at = $3, acknowledged_by = $4,
			resolved_at = $5, resolved_by = $6, resolution_note = $7,
			dismissed_at = $8, dismissed_by = $9, work_order_created = $10
		WHERE id = $1`,
		a.ID, a.Status, a.AcknowledgedAt, a.AcknowledgedBy,
		a.ResolvedAt, a.ResolvedBy, a.ResolutionNote,
		a.DismissedAt, a.DismissedBy, a.WorkOrderCreated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return telemetry.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListAlerts(ctx context.Context, f telemetry.AlertFilter) ([]telemetry.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.Severity != "" {
		args = append(args, string(f.Severity))
		query += ` AND severity = $` + strconv.Itoa(len(args))
	}
	if f.SubjectID != "" {
		args = append(args, f.SubjectID)
		n := strconv.Itoa(len(args))
		query += ` AND (sensor_id = $` + n + ` OR asset_id = $` + n + `)`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(row rowScanner) (telemetry.Sensor, error) {
	var s telemetry.Sensor
	var thresholds []byte
	var intervalSec int64
	err := row.Scan(&s.ID, &s.Code, &s.AssetID, &s.Type, &s.Unit, &intervalSec,
		&s.Connectivity, &thresholds, &s.Status, &s.LastSeen, &s.LastReading, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return telemetry.Sensor{}, telemetry.ErrNotFound
	}
	if err != nil {
		return telemetry.Sensor{}, err
	}
	s.SamplingInterval = time.Duration(intervalSec) * time.Second
	if len(thresholds) > 0 {
		if err := json.Unmarshal(thresholds, &s.Thresholds); err != nil {
			return telemetry.Sensor{}, err
		}
	}
	return s, nil
}

func scanSensors(rows pgx.Rows) ([]telemetry.Sensor, error) {
	var out []telemetry.Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (telemetry.Alert, error) {
	var a telemetry.Alert
	err := row.Scan(&a.ID, &a.Code, &a.Source, &a.SensorID, &a.AssetID, &a.Type,
		&a.Severity, &a.Status, &a.Message, &a.TriggerValue, &a.ThresholdValue,
		&a.Condition, &a.CreatedAt, &a.AcknowledgedAt, &a.AcknowledgedBy,
		&a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNote, &a.DismissedAt,
		&a.DismissedBy, &a.WorkOrderCreated)
	if errors.Is(err, pgx.ErrNoRows) {
		return telemetry.Alert{}, telemetry.ErrNotFound
	}
	return a, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
