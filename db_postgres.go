package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type PostgresDB struct {
	sqlStore
	dsn string
}

var _ Store = (*PostgresDB)(nil)

func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := newPostgresStore(d)
	p.dsn = dsn
	if err := p.Init(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func newPostgresStore(d *sql.DB) *PostgresDB {
	return &PostgresDB{sqlStore: sqlStore{db: d, numbered: true, uniqueViolation: isPostgresUniqueViolation}}
}

// unique_violation
const pqUniqueViolation = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func (p *PostgresDB) Init(ctx context.Context) error {
	// rely on migrations to create tables; just verify connectivity
	return p.db.PingContext(ctx)
}
