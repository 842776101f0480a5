package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresDedupChecker is the second dedup tier behind the in-memory
// LRU: it answers whether a command was already applied by probing the
// durable command log.
type PostgresDedupChecker struct {
	db *sql.DB
}

func NewPostgresDedupChecker(db *sql.DB) *PostgresDedupChecker {
	return &PostgresDedupChecker{db: db}
}

// IsDuplicate reports whether the command already exists in the log.
// Bounded by a short timeout so a slow DB cannot stall the core; the
// caller treats errors as "not a duplicate" and relies on the unique
// index to reject the eventual write.
func (c *PostgresDedupChecker) IsDuplicate(commandType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1
		FROM command_log.commands
		WHERE command_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, commandType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
