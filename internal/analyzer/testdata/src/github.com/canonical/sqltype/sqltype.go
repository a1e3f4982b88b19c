// Package sqltype mirrors the exported API used by the analyzer tests.
package sqltype

import "context"

type Schema struct{}

type Statement struct{}

type DB struct{}

type TX struct{}

type Query struct{}

func (s *Schema) Prepare(query string) (*Statement, error) { return nil, nil }

func (s *Schema) MustPrepare(query string) *Statement { return nil }

func (db *DB) Query(ctx context.Context, s *Statement, args ...any) *Query { return nil }

func (tx *TX) Query(ctx context.Context, s *Statement, args ...any) *Query { return nil }

func (q *Query) Run() error { return nil }
