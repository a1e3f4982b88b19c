// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"context"
	"database/sql"
	"reflect"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/canonical/sqltype/internal/expr"
)

// M is a convenience type for scanning results by column name. Any named
// map type with string keys can be used.
//
// Example:
//
//	stmt := schema.MustPrepare("SELECT name, postcode FROM people WHERE id = ?")
//	m := sqltype.M{}
//	err := db.Query(ctx, stmt, 10).Get(m) // => sqltype.M{"name": "Fred", "postcode": 10031}
type M map[string]any

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// Statement represents a checked statement ready to be run on a database.
// A statement can be used with any [DB].
type Statement struct {
	// cacheID is used to look up the driver prepared statements associated
	// with this Statement.
	cacheID uint64
	// b holds the parameter slots and result columns of the statement.
	b *expr.Binding
}

// Params returns the parameter slots of the statement in call order.
func (s *Statement) Params() []Param {
	return s.b.Params()
}

// Columns returns the result columns of the statement in projection order.
func (s *Statement) Columns() []Column {
	return s.b.Columns()
}

// SQL returns the query text of the statement.
func (s *Statement) SQL() string {
	return s.b.SQL()
}

type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
}

// NewDB creates a new [sqltype.DB] from a [sql.DB].
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX.
	run func(context.Context) (*sql.Rows, sql.Result, error)
	ctx context.Context
	err error
	pq  *expr.PrimedQuery
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	pq      *expr.PrimedQuery
	rows    *sql.Rows
	cols    []string
	err     error
	result  sql.Result
	started bool
}

// Query builds a new query from a context, a [Statement] and the input
// arguments. The arguments are checked against the parameter slots of the
// statement. The query is run on the database when one of [Query.Iter],
// [Query.Run], [Query.Get] or [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, s *Statement, inputArgs ...any) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	pq, err := s.b.BindInputs(inputArgs...)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (rows *sql.Rows, result sql.Result, err error) {
		if !s.b.Cacheable() {
			if pq.HasOutputs() {
				rows, err = db.sqldb.QueryContext(innerCtx, pq.SQL(), pq.Params()...)
			} else {
				result, err = db.sqldb.ExecContext(innerCtx, pq.SQL(), pq.Params()...)
			}
			return rows, result, err
		}

		sqlstmt, err := stmtCache.prepareStmt(innerCtx, db.cacheID, db.sqldb, s)
		if err != nil {
			return nil, nil, err
		}
		if pq.HasOutputs() {
			rows, err = sqlstmt.QueryContext(innerCtx, pq.Params()...)
		} else {
			result, err = sqlstmt.ExecContext(innerCtx, pq.Params()...)
		}
		return rows, result, err
	}

	return &Query{pq: pq, run: run, ctx: ctx, err: nil}
}

// Run is used to run a query on a database and disregard any results.
// Run is an alias for [Query.Get] that takes no arguments.
func (q *Query) Run() error {
	return q.Get()
}

// Get runs the query and decodes the first row returned into the provided
// output arguments. It returns [ErrNoRows] if the statement has result
// columns but no rows were found.
//
// A pointer to an empty [Outcome] struct may be provided as the first output
// variable to fill it with information about query execution.
func (q *Query) Get(outputArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(outputArgs) > 0 {
		if oc, ok := outputArgs[0].(*Outcome); ok {
			outcome = oc
			outputArgs = outputArgs[1:]
		}
	}
	if !q.pq.HasOutputs() && len(outputArgs) > 0 {
		return errors.New("cannot get results: output variables provided but statement has no result columns")
	}

	var err error
	iter := q.Iter()
	if outcome != nil {
		err = iter.Get(outcome)
	}
	if err == nil && !iter.Next() {
		err = iter.Close()
		if err == nil && q.pq.HasOutputs() {
			err = ErrNoRows
		}
		return err
	}
	if err == nil && len(outputArgs) > 0 {
		err = iter.Get(outputArgs...)
	}
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}

	rows, result, err := q.run(q.ctx)
	return newIterator(q.pq, rows, result, err)
}

// newIterator returns an iterator over rows. The iterator holds rows even
// when it carries an error so that [Iterator.Close] releases them.
func newIterator(pq *expr.PrimedQuery, rows *sql.Rows, result sql.Result, err error) *Iterator {
	iter := &Iterator{pq: pq, rows: rows, result: result, err: err}
	if err == nil && pq.HasOutputs() {
		iter.cols, iter.err = rows.Columns()
	}
	return iter
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get decodes the result from the previous [Iterator.Next] call into the
// provided output arguments. Each result column is scanned into the struct
// field with a db tag of the column name, or into the map argument. If
// every output argument is a pointer to a single value the columns are
// scanned into them in order.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get as the only argument to fill it information
// about query execution.
func (iter *Iterator) Get(outputArgs ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "cannot get result")
		}
	}()

	if !iter.started {
		if len(outputArgs) == 1 {
			if oc, ok := outputArgs[0].(*Outcome); ok {
				oc.result = iter.result
				return nil
			}
		}
		return errors.New("cannot call Get before Next unless getting outcome")
	}

	if iter.rows == nil {
		return errors.New("iteration ended")
	}

	ptrs, onSuccess, err := iter.pq.ScanArgs(iter.cols, outputArgs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	onSuccess()
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close
// can be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	return err
}

// Outcome holds metadata about executed queries, and can be provided as the
// first output argument to any of the Get methods to populate it with
// information about the query execution.
type Outcome struct {
	result sql.Result
}

// Result returns a [sql.Result] containing information about the query
// execution. If no result is set then Result returns nil.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// GetAll iterates over the query and scans all rows into the provided
// slices. sliceArgs must contain pointers to slices of structs, pointers to
// structs or maps, or else a pointer to a slice of values per result column.
// A pointer to an empty [Outcome] struct may be provided as the first
// output variable to get information about query execution.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(sliceArgs ...any) (err error) {
	if q.err != nil {
		return q.err
	}

	var outcome *Outcome
	if len(sliceArgs) > 0 {
		if oc, ok := sliceArgs[0].(*Outcome); ok {
			outcome = oc
			sliceArgs = sliceArgs[1:]
		}
	}
	if !q.pq.HasOutputs() && len(sliceArgs) > 0 {
		return errors.New("output variables provided but statement has no result columns")
	}
	// Check slice inputs are valid using reflection.
	var slicePtrVals = []reflect.Value{}
	var sliceVals = []reflect.Value{}
	for _, ptr := range sliceArgs {
		ptrVal := reflect.ValueOf(ptr)
		if ptrVal.Kind() != reflect.Pointer {
			return errors.Errorf("need pointer to slice, got %s", ptrVal.Kind())
		}
		if ptrVal.IsNil() {
			return errors.New("need pointer to slice, got nil")
		}
		slicePtrVals = append(slicePtrVals, ptrVal)
		sliceVal := ptrVal.Elem()
		if sliceVal.Kind() != reflect.Slice {
			return errors.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
		}
		sliceVals = append(sliceVals, sliceVal)
	}

	// Iterate over the query results.
	rowsReturned := false
	iter := q.Iter()
	if outcome != nil {
		if err := iter.Get(outcome); err != nil {
			iter.Close()
			return err
		}
	}
	for iter.Next() {
		rowsReturned = true
		var outputArgs = []any{}
		for _, sliceVal := range sliceVals {
			elemType := sliceVal.Type().Elem()
			var outputArg reflect.Value
			switch elemType.Kind() {
			case reflect.Pointer:
				if elemType.Elem().Kind() != reflect.Struct {
					iter.Close()
					return errors.Errorf("need slice of structs/maps, got slice of pointer to %s", elemType.Elem().Kind())
				}
				outputArg = reflect.New(elemType.Elem())
			case reflect.Map:
				outputArg = reflect.MakeMap(elemType)
			default:
				outputArg = reflect.New(elemType)
			}
			outputArgs = append(outputArgs, outputArg.Interface())
		}
		if err := iter.Get(outputArgs...); err != nil {
			iter.Close()
			return err
		}
		for i, outputArg := range outputArgs {
			switch sliceVals[i].Type().Elem().Kind() {
			case reflect.Pointer, reflect.Map:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg))
			default:
				sliceVals[i] = reflect.Append(sliceVals[i], reflect.ValueOf(outputArg).Elem())
			}
		}
	}
	err = iter.Close()
	if err != nil {
		return err
	} else if !rowsReturned && q.pq.HasOutputs() {
		return ErrNoRows
	}

	for i, ptrVal := range slicePtrVals {
		ptrVal.Elem().Set(sliceVals[i])
	}

	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query from a context, a [Statement] and the input
// arguments. The query is run on the database when one of [Query.Iter],
// [Query.Run], [Query.Get] or [Query.GetAll] is executed.
func (tx *TX) Query(ctx context.Context, s *Statement, inputArgs ...any) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	pq, err := s.b.BindInputs(inputArgs...)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}

	run := func(innerCtx context.Context) (rows *sql.Rows, result sql.Result, err error) {
		if sqlstmt, ok := stmtCache.lookupStmt(tx.db.cacheID, s); ok {
			// Register the prepared statement on the transaction. This does
			// not re-prepare the statement on the driver. The txstmt is
			// closed by database/sql when the transaction is committed or
			// rolled back.
			txstmt := tx.sqltx.Stmt(sqlstmt)
			if pq.HasOutputs() {
				rows, err = txstmt.QueryContext(innerCtx, pq.Params()...)
			} else {
				result, err = txstmt.ExecContext(innerCtx, pq.Params()...)
			}
			return rows, result, err
		}

		if pq.HasOutputs() {
			rows, err = tx.sqltx.QueryContext(innerCtx, pq.SQL(), pq.Params()...)
		} else {
			result, err = tx.sqltx.ExecContext(innerCtx, pq.SQL(), pq.Params()...)
		}
		return rows, result, err
	}

	return &Query{pq: pq, ctx: ctx, run: run, err: nil}
}
