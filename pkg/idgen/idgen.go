// Package idgen generates memory identifiers.
package idgen

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Generator produces unique, opaque memory IDs.
type Generator interface {
	NewID() string
}

// Kind selects a generator implementation.
type Kind string

const (
	// KindSnowflake yields time-ordered decimal snowflake IDs.
	KindSnowflake Kind = "snowflake"

	// KindUUID yields random version 4 UUIDs.
	KindUUID Kind = "uuid"
)

// New creates a generator of the given kind. node is only used by snowflake.
func New(kind Kind, node int64) (Generator, error) {
	switch kind {
	case "", KindSnowflake:
		return NewSnowflake(node)
	case KindUUID:
		return UUID{}, nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", kind)
	}
}

// Snowflake wraps a snowflake node.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a snowflake generator for node (0-1023).
func NewSnowflake(node int64) (*Snowflake, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Snowflake{node: n}, nil
}

// NewID returns the next snowflake ID in decimal form.
func (s *Snowflake) NewID() string {
	return s.node.Generate().String()
}

// UUID generates random UUIDs.
type UUID struct{}

// NewID returns a new random UUID.
func (UUID) NewID() string {
	return uuid.New().String()
}
