package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/recruitflow/backend/internal/domain"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func encodeJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, appErrors.NewInternalError("failed to encode json column", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

func decodePayload(raw []byte) (domain.Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var p domain.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, appErrors.NewInternalError("failed to decode json column", err)
	}
	return p, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}

// mapError translates driver errors into the application taxonomy.
func mapError(err error, resource, field, value string) error {
	if err == nil {
		return nil
	}
	var appErr appErrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if isDuplicate(err) {
		return appErrors.NewConflictError(resource, field, value)
	}
	if isDeadlock(err) {
		// Left unwrapped so the transaction manager can retry.
		return err
	}
	return appErrors.NewInternalError(fmt.Sprintf("%s query failed", resource), err)
}

// casUpdate issues an UPDATE guarded by lock_version. On zero affected rows
// it distinguishes a missing row from a lost race.
func casUpdate(ctx context.Context, q querier, table, resource, id string, version int64, columns []string, args []interface{}) error {
	sets := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		sets = append(sets, c+" = ?")
	}
	sets = append(sets, FieldLockVersion+" = "+FieldLockVersion+" + 1")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?",
		table, strings.Join(sets, ", "), FieldID, FieldLockVersion)

	res, err := q.ExecContext(ctx, query, append(args, id, version)...)
	if err != nil {
		return mapError(err, resource, FieldID, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err, resource, FieldID, id)
	}
	if n > 0 {
		return nil
	}
	exists, err := rowExists(ctx, q, table, id)
	if err != nil {
		return mapError(err, resource, FieldID, id)
	}
	if !exists {
		return appErrors.NewNotFoundError(resource, id)
	}
	return appErrors.NewStaleStateError(resource, id, version)
}

func rowExists(ctx context.Context, q querier, table, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)", table, FieldID)
	err := q.QueryRowContext(ctx, query, id).Scan(&exists)
	return exists, err
}

// execAffected runs an exec and reports affected rows.
func execAffected(ctx context.Context, q querier, query string, args ...interface{}) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func insertQuery(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))
}

func selectQuery(table string, columns []string, where string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(columns, ", "), table, where)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
