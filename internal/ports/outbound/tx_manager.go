package outbound

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TxManager scopes the writes of one emitted result, the snapshot row and its
// warning row, to a single transaction.
type TxManager interface {
	// WithTransaction commits when fn returns nil and rolls back otherwise,
	// including when fn panics.
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}
