package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"QuotaGame/internal/domain/models"
	"QuotaGame/internal/domain/repository"
	applogger "QuotaGame/pkg/logger"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db          *sql.DB
	samples     string
	settlements string
	l           *applogger.Logger
}

// NewClickHouseStorage creates ClickHouse storage writing to the given tables.
func NewClickHouseStorage(db *sql.DB, samplesTable, settlementsTable string, l *applogger.Logger) repository.Storage {
	return &ClickHouseStorage{db: db, samples: samplesTable, settlements: settlementsTable, l: l}
}

// Init creates the tables if they do not exist.
func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range Schema(s.samples, s.settlements) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Schema returns the DDL of the export tables.
func Schema(samplesTable, settlementsTable string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id String,
			idx UInt64,
			ts DateTime64(3),
			price Float64
		) ENGINE = MergeTree ORDER BY (session_id, idx)`, samplesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id String,
			round_id String,
			hit UInt8,
			stake Int64,
			multiplier Float64,
			probability Float64,
			delta Decimal(18, 2),
			budget Decimal(18, 2),
			release_idx UInt64,
			decided_idx UInt64,
			ts DateTime64(3)
		) ENGINE = MergeTree ORDER BY (session_id, ts)`, settlementsTable),
	}
}

// StoreSamples inserts samples using multi-row VALUES to reduce round-trips.
func (s *ClickHouseStorage) StoreSamples(ctx context.Context, sessionID string, samples []models.PriceSample) error {
	const chunkSize = 2000
	for start := 0; start < len(samples); start += chunkSize {
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		q, args := buildSampleInsert(s.samples, sessionID, samples[start:end])
		if q == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse insert samples",
					applogger.String("table", s.samples),
					applogger.Int("rows", end-start),
					applogger.Error(err))
			}
			return fmt.Errorf("insert samples: %w", err)
		}
	}
	return nil
}

func buildSampleInsert(table, sessionID string, samples []models.PriceSample) (string, []interface{}) {
	values := make([]string, 0, len(samples))
	args := make([]interface{}, 0, len(samples)*4)
	for _, p := range samples {
		if !(p.Value > 0) {
			continue
		}
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, sessionID, uint64(p.Index), p.At, p.Value)
	}
	if len(values) == 0 {
		return "", nil
	}
	q := fmt.Sprintf("INSERT INTO %s (session_id, idx, ts, price) VALUES %s", table, strings.Join(values, ","))
	return q, args
}

func (s *ClickHouseStorage) StoreSettlement(ctx context.Context, st *models.Settlement) error {
	q := fmt.Sprintf(`INSERT INTO %s (session_id, round_id, hit, stake, multiplier, probability,
		delta, budget, release_idx, decided_idx, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.settlements)
	hit := uint8(0)
	if st.Hit {
		hit = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		st.SessionID,
		st.RoundID,
		hit,
		st.Stake,
		st.Multiplier,
		st.Probability,
		st.Delta.String(),
		st.Budget.String(),
		uint64(st.ReleaseIndex),
		uint64(st.DecidedAt),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}
