package database

import (
	"context"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Query executes a SurrealQL statement and decodes the first statement's
// result into a slice of T.
//
// Example:
//
//	query := "SELECT * FROM message WHERE chat_id = $chat"
//	rows, err := Query[messageRow](ctx, db, query, map[string]any{"chat": "r1"})
func Query[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, NewDBError(err, ErrQueryFailed.Error()).WithQuery(query)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// QueryOne executes a query and returns a single result, or nil when there
// is none. SELECT statements without a LIMIT get LIMIT 1 appended.
func QueryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") && !hasLimitClause(query) {
		query += " LIMIT 1"
	}

	results, err := Query[T](ctx, db, query, params)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// Execute runs statements whose results are not needed. Every statement's
// status is checked, so a failed statement inside a transaction is reported.
func Execute(ctx context.Context, db *surrealdb.DB, query string, params map[string]any) error {
	results, err := surrealdb.Query[any](ctx, db, query, params)
	if err != nil {
		return NewDBError(err, ErrQueryFailed.Error()).WithQuery(query)
	}
	if results == nil {
		return nil
	}
	for _, r := range *results {
		if r.Status != "OK" {
			return NewDBError(ErrQueryFailed, "statement failed").WithQuery(query).WithParams(map[string]any{"status": r.Status, "result": r.Result})
		}
	}
	return nil
}

func hasLimitClause(query string) bool {
	query = " " + strings.ToUpper(query) + " "
	return strings.Contains(query, " LIMIT ")
}
