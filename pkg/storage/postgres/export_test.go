package postgres

import (
	"context"
	"fmt"

	"github.com/powerbrain/brainmem-go/pkg/storage"
)

// DeleteAll drops every memory of userID ("" = all) between tests.
func (c *Client) DeleteAll(ctx context.Context, userID string) error {
	whereClause, args := buildWhereClause(&storage.SearchOptions{UserID: userID})
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause), args...); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}
	return nil
}
