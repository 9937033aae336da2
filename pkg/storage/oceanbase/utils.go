package oceanbase

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// vectorToString converts a float64 slice to an OceanBase VECTOR format string.
// Example: [0.1, 0.2, 0.3] -> "[0.1,0.2,0.3]"
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

// stringToVector converts a string to a float64 slice.
// Example: "[0.1,0.2,0.3]" -> [0.1, 0.2, 0.3]
func stringToVector(s string) ([]float64, error) {
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

// buildWhereClause builds a WHERE clause. Tags are left to SearchOptions.Matches.
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
		args = append(args, opts.Since.UTC())
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// generateHash generates an MD5 hash for content.
func generateHash(content string) string {
	hash := md5.Sum([]byte(content))
	return hex.EncodeToString(hash[:])
}
