package sqlite

import (
	"strings"

	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// buildWhereClause builds a WHERE clause for the filters SQLite can evaluate.
// Tags are filtered in Go.
func buildWhereClause(opts *storage.SearchOptions) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if opts.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, opts.UserID)
	}

	if len(opts.MemoryTypes) > 0 {
		placeholders := make([]string, len(opts.MemoryTypes))
		for i, t := range opts.MemoryTypes {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "memory_type IN ("+strings.Join(placeholders, ", ")+")")
	}

	if opts.Since != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, storage.FormatTime(*opts.Since))
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
