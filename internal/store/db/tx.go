package db

import (
	"context"
	"database/sql"
)

// MakeTx is a function that creates a db transaction
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(database *sql.DB) MakeTx {
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := database.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return New(sqltx),
			func() error {
				// a no-op once committed
				return sqltx.Rollback()
			},
			sqltx.Commit,
			nil
	}
}

// InTx runs fn inside a transaction committed only when fn succeeds.
func InTx(ctx context.Context, makeTx MakeTx, fn func(tx *Queries) error) error {
	tx, discard, commit, err := makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	err = fn(tx)
	if err != nil {
		return err
	}
	return commit()
}
