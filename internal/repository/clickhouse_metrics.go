package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"StratGov/internal/domain/models"
	"StratGov/internal/service/metricfeed"
	pkgch "StratGov/pkg/clickhouse"
	applogger "StratGov/pkg/logger"
)

// metricSchema holds historical metric series. Falsifier windows reach
// back weeks or months, further than the live feed's in-memory retention.
var metricSchema = []string{
	`CREATE TABLE IF NOT EXISTS governance_metrics (
        metric LowCardinality(String),
        symbol String,
        ts     DateTime64(3),
        value  Float64
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (metric, symbol, ts)`,
}

// CHMetricProvider implements MetricProvider over the historical metric
// table. No rows in the window means MetricUnavailableError; the caller
// decides what absence means (the falsifier monitor skips, never fires).
type CHMetricProvider struct {
	db *sql.DB
	l  *applogger.Logger
}

// NewCHMetricProvider creates the provider and ensures the schema exists.
func NewCHMetricProvider(ctx context.Context, ch *pkgch.Client, l *applogger.Logger) (*CHMetricProvider, error) {
	if err := ch.InitSchema(ctx, metricSchema); err != nil {
		return nil, fmt.Errorf("metric schema: %w", err)
	}
	return &CHMetricProvider{db: ch.DB(), l: l}, nil
}

// GetValue averages the series over the window. Scoped lookups restrict
// to the scope's symbols; an empty scope reads the unscoped series.
func (p *CHMetricProvider) GetValue(ctx context.Context, metric string, scope models.Scope, window string) (float64, error) {
	dur, err := metricfeed.ParseWindow(window)
	if err != nil {
		return 0, fmt.Errorf("metric %q: %w", metric, err)
	}

	query := `
        SELECT avg(value), count()
        FROM governance_metrics
        WHERE metric = ? AND ts >= now() - INTERVAL ? SECOND
    `
	args := []interface{}{metric, int64(dur.Seconds())}
	if len(scope.Symbols) > 0 {
		query += " AND symbol IN (" + placeholders(len(scope.Symbols)) + ")"
		for _, s := range scope.Symbols {
			args = append(args, s)
		}
	} else {
		query += " AND symbol = ''"
	}

	var (
		avg   sql.NullFloat64
		count uint64
	)
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&avg, &count); err != nil {
		p.l.Error("clickhouse metric query error",
			applogger.String("metric", metric),
			applogger.Error(err),
		)
		return 0, fmt.Errorf("metric query: %w", err)
	}
	if count == 0 || !avg.Valid {
		return 0, &models.MetricUnavailableError{Metric: metric, Scope: scopeString(scope)}
	}
	return avg.Float64, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scopeString(scope models.Scope) string {
	if len(scope.Symbols) > 0 {
		return strings.Join(scope.Symbols, ",")
	}
	return "global"
}
