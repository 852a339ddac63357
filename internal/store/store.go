package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, apperr.Unavailable("connect to database", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, apperr.Unavailable("ping database", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, used by the health endpoint
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Unavailable("ping database", err)
	}
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return apperr.Unavailable("apply schema", err)
	}
	return nil
}

// inTx runs fn inside a transaction, committing only when fn succeeds
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(op, err)
	}
	return nil
}

// Postgres error codes the store translates into domain errors.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqInvalidText         = "22P02"
)

// mapErr converts driver errors into apperr kinds. Constraint violations are
// caller mistakes; everything else means the store is unavailable.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation, pqInvalidText:
			return fmt.Errorf("%s: %w: %w", op, apperr.ErrNotFound, err)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: duplicate %s", op, apperr.ErrValidation, pqErr.Constraint)
		case pqCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrValidation, pqErr.Message)
		}
	}
	return apperr.Unavailable(op, err)
}

// notFound turns sql.ErrNoRows into a typed NotFound for the given entity
func notFound(kind, id, op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInvalidText {
		return apperr.NotFound(kind, id)
	}
	return mapErr(op, err)
}
