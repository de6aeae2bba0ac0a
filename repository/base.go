// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BaseRepository provides common repository functionality with transaction support
type BaseRepository[T any, F any] struct {
	DB *gorm.DB
}

// NewBaseRepository creates a new base repository instance
func NewBaseRepository[T any, F any](db *gorm.DB) *BaseRepository[T, F] {
	return &BaseRepository[T, F]{
		DB: db,
	}
}

// getDB returns the transaction bound to ctx, or the root connection
func (r *BaseRepository[T, F]) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return r.DB.WithContext(ctx)
}

// write runs fn against the ambient transaction, or inside a fresh one that is
// committed when fn succeeds
func (r *BaseRepository[T, F]) write(ctx context.Context, fn func(db *gorm.DB) error) error {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(tx.WithContext(ctx))
	}
	return r.DB.WithContext(ctx).Transaction(fn)
}

// ByID retrieves an entity by its ID
func (r *BaseRepository[T, F]) ByID(ctx context.Context, id uint) (*T, error) {
	db := r.getDB(ctx)

	var entity T
	err := db.Last(&entity, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entity by ID %d: %w", id, err)
	}

	return &entity, nil
}

// Save inserts a new entity
func (r *BaseRepository[T, F]) Save(ctx context.Context, entity *T) error {
	err := r.write(ctx, func(db *gorm.DB) error {
		return db.Create(entity).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}
	return nil
}

// WithTransaction executes fn within a database transaction. If ctx already
// carries a transaction, fn joins it and the outer caller owns commit.
func WithTransaction(ctx context.Context, db *gorm.DB, fn func(context.Context) error) error {
	return withTx(ctx, db, nil, fn)
}

// WithReadSnapshot executes fn in a read-only REPEATABLE READ transaction
func WithReadSnapshot(ctx context.Context, db *gorm.DB, fn func(context.Context) error) error {
	return withTx(ctx, db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func withTx(ctx context.Context, db *gorm.DB, opts *sql.TxOptions, fn func(context.Context) error) (err error) {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}

	var tx *gorm.DB
	if opts != nil {
		tx = db.WithContext(ctx).Begin(opts)
	} else {
		tx = db.WithContext(ctx).Begin()
	}
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()

	txCtx := context.WithValue(ctx, TxContextKey, tx)

	if err := fn(txCtx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GormTransactor runs units of work in Postgres transactions
type GormTransactor struct {
	db *gorm.DB
}

// NewTransactor creates a Transactor backed by db
func NewTransactor(db *gorm.DB) Transactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return WithTransaction(ctx, t.db, fn)
}

func (t *GormTransactor) WithinReadSnapshot(ctx context.Context, fn func(txCtx context.Context) error) error {
	return WithReadSnapshot(ctx, t.db, fn)
}

// IsDuplicateKey reports whether err is a unique constraint violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
