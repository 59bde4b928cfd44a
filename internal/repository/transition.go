package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// StatusTransition moves one row from an expected status to a new one.
type StatusTransition struct {
	ID     string
	From   string
	To     string
	Fields map[string]interface{}
}

// applyTransition runs a compare-and-set update; it returns sql.ErrNoRows when the row
// is missing or no longer in the expected status.
func applyTransition(ctx context.Context, exec sqlx.ExtContext, table string, t StatusTransition) error {
	setParts := []string{"status = :to", "updated_at = NOW()"}
	args := map[string]interface{}{
		"id":   t.ID,
		"from": t.From,
		"to":   t.To,
	}
	columns := make([]string, 0, len(t.Fields))
	for column := range t.Fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	for _, column := range columns {
		setParts = append(setParts, fmt.Sprintf("%s = :%s", column, column))
		args[column] = t.Fields[column]
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id AND status = :from", table, strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, exec, query, args)
	if err != nil {
		return fmt.Errorf("transition %s: %w", table, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s transition rows: %w", table, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
