package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// LogFields flattens an error into structured log fields: the typed code,
// the unwrap chain and, for Postgres failures, the server diagnostics.
// Empty values are omitted.
func LogFields(err error) map[string]any {
	fields := map[string]any{}
	if err == nil {
		return fields
	}

	fields["error"] = err.Error()
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.Code())
		if step := detailStep(typed.Details()); step != "" {
			fields["step"] = step
		}
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T", e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for key, value := range map[string]string{
			"pg_code":       pgErr.Code,
			"pg_constraint": pgErr.ConstraintName,
			"pg_table":      pgErr.TableName,
			"pg_column":     pgErr.ColumnName,
			"pg_detail":     pgErr.Detail,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

func detailStep(details any) string {
	m, ok := details.(map[string]any)
	if !ok {
		return ""
	}
	step, _ := m["step"].(string)
	return step
}
