package postgres

/*
Файл audit_repo.go — долговременное хранилище записей аудита.
Схема:

	CREATE TABLE audit_logs (
		id              UUID PRIMARY KEY,
		correlation_id  TEXT NOT NULL,
		tool            TEXT NOT NULL,
		caller          TEXT NOT NULL,
		role            TEXT NOT NULL,
		inputs          JSONB,
		result          JSONB,
		error_message   TEXT,
		error_code      TEXT,
		ok              BOOLEAN NOT NULL,
		okta_request_id TEXT,
		duration_ms     BIGINT NOT NULL,
		timestamp       TIMESTAMPTZ NOT NULL
	);
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/idp-admin-gateway/internal/audit"
)

const auditColumns = "id, correlation_id, tool, caller, role, inputs, result, error_message, error_code, ok, okta_request_id, duration_ms, timestamp"

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) (*AuditRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}, nil
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

func (r *AuditRepo) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	query, vals := buildInsert(records)
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: audit batch insert: %w", err)
	}
	return nil
}

// buildInsert динамически строит запрос пакетной вставки.
func buildInsert(records []audit.Record) (string, []interface{}) {
	const numFields = 13
	var sb strings.Builder
	vals := make([]interface{}, 0, len(records)*numFields)

	for i, rec := range records {
		if i > 0 {
			sb.WriteString(",")
		}
		p := i * numFields
		sb.WriteString("(")
		for f := 1; f <= numFields; f++ {
			if f > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", p+f)
		}
		sb.WriteString(")")

		var errMsg, errCode sql.NullString
		if rec.Error != nil {
			errMsg = sql.NullString{String: rec.Error.Message, Valid: true}
			errCode = sql.NullString{String: rec.Error.Code, Valid: rec.Error.Code != ""}
		}

		vals = append(vals,
			rec.ID, rec.CorrelationID, rec.Tool, rec.Caller, rec.Role,
			jsonOrNull(rec.Inputs), jsonOrNull(rec.Result), errMsg, errCode,
			rec.OK, nullIfEmpty(rec.OktaRequestID), rec.DurationMs, rec.Timestamp,
		)
	}

	return fmt.Sprintf("INSERT INTO audit_logs (%s) VALUES %s", auditColumns, sb.String()), vals
}

// Filter — условия выборки. Пустые поля не фильтруют.
type Filter struct {
	Tool          string
	Caller        string
	CorrelationID string
	Limit         int
}

func (r *AuditRepo) FetchLogs(ctx context.Context, f Filter) ([]audit.Record, error) {
	query, args := buildSelect(f)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit logs: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]audit.Record, 0)
	for rows.Next() {
		var (
			rec             audit.Record
			inputs, result  []byte
			errMsg, errCode sql.NullString
			requestID       sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &rec.CorrelationID, &rec.Tool, &rec.Caller, &rec.Role,
			&inputs, &result, &errMsg, &errCode,
			&rec.OK, &requestID, &rec.DurationMs, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit record: %w", err)
		}
		if len(inputs) > 0 {
			rec.Inputs = json.RawMessage(inputs)
		}
		if len(result) > 0 {
			rec.Result = json.RawMessage(result)
		}
		if errMsg.Valid {
			rec.Error = &audit.RecordError{Message: errMsg.String, Code: errCode.String}
		}
		rec.OktaRequestID = requestID.String
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

func buildSelect(f Filter) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("tool", f.Tool)
	add("caller", f.Caller)
	add("correlation_id", f.CorrelationID)

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := "SELECT " + auditColumns + " FROM audit_logs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	return query, args
}

func jsonOrNull(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
