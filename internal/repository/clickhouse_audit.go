package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"StratGov/internal/domain/models"
	pkgch "StratGov/pkg/clickhouse"
	applogger "StratGov/pkg/logger"
)

// auditSchema is the append-only governance log. MergeTree ordered by
// timestamp keeps a single symbol+time-range query cheap; there is no
// UPDATE or DELETE path anywhere in this store.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS governance_audit (
        id             String,
        ts             DateTime64(3),
        event_type     LowCardinality(String),
        hypothesis_id  String,
        constraint_id  String,
        symbol         String,
        strategy       String,
        action_details String,
        trace_id       String
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY (ts, symbol, event_type)`,
}

// CHAuditStore implements AuditStore backed by ClickHouse.
type CHAuditStore struct {
	db *sql.DB
	l  *applogger.Logger
}

// NewCHAuditStore creates the store and ensures the schema exists.
func NewCHAuditStore(ctx context.Context, ch *pkgch.Client, l *applogger.Logger) (*CHAuditStore, error) {
	if err := ch.InitSchema(ctx, auditSchema); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return &CHAuditStore{db: ch.DB(), l: l}, nil
}

// Append writes one entry synchronously. Storage failure is returned to
// the caller; governance actions do not proceed unaudited.
func (s *CHAuditStore) Append(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = NewEntryID(entry.Timestamp)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	details := "{}"
	if entry.ActionDetails != nil {
		b, err := json.Marshal(entry.ActionDetails)
		if err != nil {
			return fmt.Errorf("marshal action details: %w", err)
		}
		details = string(b)
	}

	const q = `
        INSERT INTO governance_audit
            (id, ts, event_type, hypothesis_id, constraint_id, symbol, strategy, action_details, trace_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q,
		entry.ID, entry.Timestamp, string(entry.EventType),
		entry.HypothesisID, entry.ConstraintID, entry.Symbol,
		entry.Strategy, details, entry.TraceID,
	); err != nil {
		s.l.Error("clickhouse audit append error",
			applogger.String("event_type", string(entry.EventType)),
			applogger.Error(err),
		)
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}

// Query returns matching entries in timestamp order.
func (s *CHAuditStore) Query(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, error) {
	var (
		conds []string
		args  []interface{}
	)
	if q.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if q.ConstraintID != "" {
		conds = append(conds, "constraint_id = ?")
		args = append(args, q.ConstraintID)
	}
	if q.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(q.EventType))
	}
	if !q.From.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, q.To)
	}

	query := `
        SELECT id, ts, event_type, hypothesis_id, constraint_id, symbol, strategy, action_details, trace_id
        FROM governance_audit
    `
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.l.Error("clickhouse audit query error",
			applogger.String("symbol", q.Symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer rows.Close()

	out := make([]models.AuditEntry, 0, 128)
	for rows.Next() {
		var (
			e       models.AuditEntry
			event   string
			details string
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &event, &e.HypothesisID,
			&e.ConstraintID, &e.Symbol, &e.Strategy, &details, &e.TraceID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EventType = models.AuditEventType(event)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.ActionDetails); err != nil {
				return nil, fmt.Errorf("unmarshal action details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit rows: %w", err)
	}
	return out, nil
}

// Health pings the connection pool.
func (s *CHAuditStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the shared client owns the pool.
func (s *CHAuditStore) Close() error { return nil }
