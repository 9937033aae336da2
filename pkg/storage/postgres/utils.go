package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// buildWhereClause builds a WHERE clause starting from $1.
func buildWhereClause(opts *storage.SearchOptions) (string, []interface{}) {
	return buildWhereClauseWithOffset(opts, 1)
}

// buildWhereClauseWithOffset builds a WHERE clause starting from a specific parameter index.
func buildWhereClauseWithOffset(opts *storage.SearchOptions, startIndex int) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}
	argIndex := startIndex

	if opts.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, opts.UserID)
		argIndex++
	}

	if len(opts.MemoryTypes) > 0 {
		types := make([]string, len(opts.MemoryTypes))
		for i, t := range opts.MemoryTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("memory_type = ANY($%d)", argIndex))
		args = append(args, pq.Array(types))
		argIndex++
	}

	if len(opts.Tags) > 0 {
		// ?| matches rows whose JSONB array holds any of the given strings.
		conditions = append(conditions, fmt.Sprintf("tags ?| $%d", argIndex))
		args = append(args, pq.Array(opts.Tags))
		argIndex++
	}

	if opts.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, opts.Since.UTC())
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// vectorToString converts a vector to pgvector's text format.
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 32)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// parseVectorString parses a pgvector text value.
func parseVectorString(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}
