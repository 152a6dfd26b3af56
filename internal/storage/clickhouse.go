package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings. An empty Host
// disables the stats store entirely.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// StatsProvider serves award statistics for the stats.* expression
// namespace and the strategy layer probabilities. A nil or empty map
// means no stats are available for the key.
type StatsProvider interface {
	AwardStats(ctx context.Context, airline, month, base string, seniorityDecile int) (map[string]float64, error)
}

// StatsDB is the ClickHouse-backed award-stats store.
type StatsDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *StatsDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens the award-stats connection and ensures the schema.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*StatsDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	d := &StatsDB{conn: conn}
	if err := d.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return d, nil
}

// Close closes the ClickHouse connection.
func (d *StatsDB) Close() error {
	return d.conn.Close()
}

func (d *StatsDB) createSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS award_stats (
			airline            LowCardinality(String),
			month              LowCardinality(String),
			base               LowCardinality(String),
			seniority_decile   UInt8,
			layer_n            UInt16,
			award_rate         Float64,
			base_competition   Float64,
			sample_size        UInt32,
			recorded_at        DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY (airline, month)
		ORDER BY (airline, month, base, seniority_decile, layer_n)
		SETTINGS index_granularity = 8192`,
	}
	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// AwardStat is one historical award observation bucket.
type AwardStat struct {
	Airline         string
	Month           string
	Base            string
	SeniorityDecile int
	LayerN          int
	AwardRate       float64
	BaseCompetition float64
	SampleSize      int
}

// InsertAwardStats batch-inserts observation buckets.
func (d *StatsDB) InsertAwardStats(ctx context.Context, stats []AwardStat) error {
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO award_stats (airline, month, base, seniority_decile, layer_n, award_rate, base_competition, sample_size)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, s := range stats {
		if err := batch.Append(s.Airline, s.Month, s.Base, uint8(s.SeniorityDecile),
			uint16(s.LayerN), s.AwardRate, s.BaseCompetition, uint32(s.SampleSize)); err != nil {
			return fmt.Errorf("append stat: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// AwardStats aggregates the bucket for (airline, month, base, decile).
// An empty map means no history exists for the key.
func (d *StatsDB) AwardStats(ctx context.Context, airline, month, base string, seniorityDecile int) (map[string]float64, error) {
	row := d.conn.QueryRow(ctx, `
		SELECT avg(award_rate), avg(base_competition), count()
		FROM award_stats
		WHERE airline = ? AND month = ? AND base = ? AND seniority_decile = ?`,
		airline, month, base, uint8(seniorityDecile))

	var avgRate, competition float64
	var n uint64
	if err := row.Scan(&avgRate, &competition, &n); err != nil {
		return nil, fmt.Errorf("query award stats: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return map[string]float64{
		"avg_award_rate":   avgRate,
		"base_competition": competition,
	}, nil
}

// LayerAwardRates returns the historical award rate per layer position
// for (airline, month, base, decile), keyed by layer number. Empty when
// no history exists.
func (d *StatsDB) LayerAwardRates(ctx context.Context, airline, month, base string, seniorityDecile int) (map[int]float64, error) {
	rows, err := d.conn.Query(ctx, `
		SELECT layer_n, avg(award_rate)
		FROM award_stats
		WHERE airline = ? AND month = ? AND base = ? AND seniority_decile = ? AND layer_n > 0
		GROUP BY layer_n
		ORDER BY layer_n`,
		airline, month, base, uint8(seniorityDecile))
	if err != nil {
		return nil, fmt.Errorf("query layer rates: %w", err)
	}
	defer rows.Close()

	out := make(map[int]float64)
	for rows.Next() {
		var layer uint16
		var rate float64
		if err := rows.Scan(&layer, &rate); err != nil {
			return nil, fmt.Errorf("scan layer rate: %w", err)
		}
		out[int(layer)] = rate
	}
	return out, rows.Err()
}
