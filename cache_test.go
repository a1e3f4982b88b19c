// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"context"
	"database/sql"
	"runtime"
	"testing"
	"time"

	"github.com/pkg/errors"
	. "gopkg.in/check.v1"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type CacheSuite struct{}

var _ = Suite(&CacheSuite{})

const cacheSchema = `
CREATE TABLE t (
	col int NOT NULL
);
`

var cacheTestSchema = MustParseSchema(cacheSchema, Options{})

func (s *CacheSuite) TearDownTest(c *C) {
	// Check every test finishes cleanly.
	s.triggerFinalizers()
	s.checkCacheEmpty(c)
	s.checkDriverStmtsAllClosed(c)
}

func (s *CacheSuite) TearDownSuite(_ *C) {
	stmtRegistryMutex.Lock()
	defer stmtRegistryMutex.Unlock()

	// Reset prepared statements trackers.
	closedStmts = map[string]map[uintptr]bool{}
	openedStmts = map[string]map[uintptr]string{}

	queriesRunMutex.Lock()
	defer queriesRunMutex.Unlock()
	dbQueriesRun = map[string]int{}
	stmtQueriesRun = map[string]int{}
}

func (s *CacheSuite) TestPreparedStatementReuse(c *C) {
	db := s.openDB(c)

	var stmtID uint64
	// For a Statement or DB to be removed from the cache it needs to go out of
	// scope and be garbage collected. A function is used to "forget" the
	// statement.
	func() {
		stmt, err := cacheTestSchema.Prepare(`SELECT 'test'`)
		c.Assert(err, IsNil)
		stmtID = stmt.cacheID

		// Start a query with stmt on db. This will prepare the stmt on the db.
		err = db.Query(nil, stmt).Run()
		c.Assert(err, IsNil)

		// Check a statement is in the cache and a prepared statement has been
		// opened on the DB.
		s.checkStmtInCache(c, db.cacheID, stmt.cacheID)
		s.checkNumDBStmts(c, db.cacheID, 1)
		s.checkDriverStmtsOpened(c, 1)

		// Run the query again.
		err = db.Query(nil, stmt).Run()
		c.Assert(err, IsNil)

		// Check that running a second time does not prepare a second statement.
		s.checkNumDBStmts(c, db.cacheID, 1)
		s.checkDriverStmtsOpened(c, 1)
	}()

	s.triggerFinalizers()

	// Check the prepared statement has been removed from the cache and closed.
	s.checkStmtNotInCache(c, stmtID)
	s.checkDriverStmtsAllClosed(c)
}

func (s *CacheSuite) TestClosingDB(c *C) {
	stmt, err := cacheTestSchema.Prepare(`SELECT 'test'`)
	c.Assert(err, IsNil)

	var dbID uint64
	func() {
		db := s.openDB(c)
		dbID = db.cacheID

		err = db.Query(nil, stmt).Run()
		c.Assert(err, IsNil)

		s.checkStmtInCache(c, db.cacheID, stmt.cacheID)
		s.checkNumDBStmts(c, db.cacheID, 1)
		s.checkDriverStmtsOpened(c, 1)
	}()

	s.triggerFinalizers()
	s.checkDBNotInCache(c, dbID)
	s.checkDriverStmtsAllClosed(c)

	// Check that the statement runs fine on a new DB.
	db := s.openDB(c)
	err = db.Query(nil, stmt).Run()
	c.Assert(err, IsNil)

	// Check the statement has been added to the cache for the new DB.
	s.checkStmtInCache(c, db.cacheID, stmt.cacheID)
	s.checkNumDBStmts(c, db.cacheID, 1)
	s.checkDriverStmtsOpened(c, 2)
}

func (s *CacheSuite) TestPreparedStatementsClosedWithDB(c *C) {
	stmt, err := cacheTestSchema.Prepare(`SELECT 'test'`)
	c.Assert(err, IsNil)

	func() {
		db := s.openDB(c)

		err = db.Query(context.Background(), stmt).Run()
		c.Assert(err, IsNil)

		s.checkStmtInCache(c, db.cacheID, stmt.cacheID)
	}()
	s.triggerFinalizers()
	s.checkStmtNotInCache(c, stmt.cacheID)
}

func (s *CacheSuite) TestPreparedStatementsInTX(c *C) {
	db := s.openDB(c)

	stmt, err := cacheTestSchema.Prepare(`SELECT 'test'`)
	c.Assert(err, IsNil)

	tx, err := db.Begin(context.Background(), nil)
	c.Assert(err, IsNil)

	// A query executed on a transaction will reuse a prepared statement if it
	// exists, but it will not create one if it does not. The query below should
	// run directly on the DB, not use a prepared statement.
	err = tx.Query(context.Background(), stmt).Run()
	c.Assert(err, IsNil)
	s.checkNumDBStmts(c, db.cacheID, 0)
	s.checkQueriesRunOnDB(c, 1)
	s.checkQueriesRunOnStmt(c, 0)

	// Prepare the query on the database by running it.
	err = db.Query(context.Background(), stmt).Run()
	c.Assert(err, IsNil)
	s.checkStmtInCache(c, db.cacheID, stmt.cacheID)
	s.checkNumDBStmts(c, db.cacheID, 1)
	s.checkQueriesRunOnDB(c, 1)
	s.checkQueriesRunOnStmt(c, 1)

	// Run the statement on the transaction. This should reuse the prepared
	// statement.
	err = tx.Query(context.Background(), stmt).Run()
	c.Assert(err, IsNil)
	s.checkQueriesRunOnDB(c, 1)
	s.checkQueriesRunOnStmt(c, 2)

	err = tx.Commit()
	c.Assert(err, IsNil)
}

// TestLateQuery checks that a Query that outlives a Statement does not throw a
// statement is closed error.
func (s *CacheSuite) TestLateQuery(c *C) {
	var q *Query
	func() {
		db := s.openDB(c)

		selectStmt, err := cacheTestSchema.Prepare(`SELECT 'hello'`)
		c.Assert(err, IsNil)
		q = db.Query(nil, selectStmt)
	}()

	s.triggerFinalizers()

	c.Assert(q.Run(), IsNil)
}

// TestLateQueryTX checks that a Query on a transaction that outlives a
// Statement does not throw a statement is closed error.
func (s *CacheSuite) TestLateQueryTX(c *C) {
	var q *Query
	func() {
		db := s.openDB(c)

		selectStmt, err := cacheTestSchema.Prepare(`SELECT 'hello'`)
		c.Assert(err, IsNil)
		tx, err := db.Begin(nil, nil)
		c.Assert(err, IsNil)
		q = tx.Query(nil, selectStmt)
	}()

	s.triggerFinalizers()

	c.Assert(q.Run(), IsNil)
}

// TestListStatementsNotCached checks that statements whose SQL depends on
// the length of their list arguments are run without a driver prepared
// statement.
func (s *CacheSuite) TestListStatementsNotCached(c *C) {
	db := s.openDB(c)
	_, err := db.PlainDB().Exec(cacheSchema)
	c.Assert(err, IsNil)

	insertStmt, err := cacheTestSchema.Prepare(`INSERT INTO t (col) VALUES (?)`)
	c.Assert(err, IsNil)
	for i := 1; i <= 5; i++ {
		err = db.Query(context.Background(), insertStmt, i).Run()
		c.Assert(err, IsNil)
	}
	s.checkNumDBStmts(c, db.cacheID, 1)

	selectStmt, err := cacheTestSchema.Prepare(`SELECT col FROM t WHERE col IN (_LIST_) ORDER BY col`)
	c.Assert(err, IsNil)

	var cols []int32
	err = db.Query(context.Background(), selectStmt, []int{1, 3, 5}).GetAll(&cols)
	c.Assert(err, IsNil)
	c.Assert(cols, DeepEquals, []int32{1, 3, 5})

	cols = nil
	err = db.Query(context.Background(), selectStmt, []int{2, 4}).GetAll(&cols)
	c.Assert(err, IsNil)
	c.Assert(cols, DeepEquals, []int32{2, 4})

	s.checkNumDBStmts(c, db.cacheID, 1)
	s.checkQueriesRunOnStmt(c, 5)
	// The create statement and the two selects.
	s.checkQueriesRunOnDB(c, 3)
}

// TestIteratorErrorReleasesRows checks that an iterator carrying an error
// still closes the rows it was given.
func (s *CacheSuite) TestIteratorErrorReleasesRows(c *C) {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(1)

	stmt := cacheTestSchema.MustPrepare("SELECT col FROM t")
	pq, err := stmt.b.BindInputs()
	c.Assert(err, IsNil)

	rows, err := sqldb.Query("SELECT 1")
	c.Assert(err, IsNil)
	iter := newIterator(pq, rows, nil, errors.New("cannot read columns"))
	c.Check(iter.Next(), Equals, false)
	c.Check(iter.Close(), ErrorMatches, "cannot read columns")

	// The only connection is free again.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var one int
	c.Assert(sqldb.QueryRowContext(ctx, "SELECT 1").Scan(&one), IsNil)
	c.Check(one, Equals, 1)
}

func (s *CacheSuite) openDB(c *C) *DB {
	db, err := sql.Open("sqlite3_stmtChecked", "file:test.db?cache=shared&mode=memory&testName="+c.TestName())
	c.Assert(err, IsNil)
	return NewDB(db)
}

func (s *CacheSuite) triggerFinalizers() {
	// Try to run finalizers by calling GC several times.
	for i := 0; i <= 10; i++ {
		runtime.GC()
		time.Sleep(0)
	}
}

func (s *CacheSuite) checkStmtInCache(c *C, dbID, stmtID uint64) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	_, ok := stmtCache.stmtDBCache[stmtID][dbID]
	c.Check(ok, Equals, true)
	_, ok = stmtCache.dbStmtCache[dbID][stmtID]
	c.Check(ok, Equals, true)
}

func (s *CacheSuite) checkStmtNotInCache(c *C, stmtID uint64) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	dbc, ok := stmtCache.stmtDBCache[stmtID]
	if ok {
		c.Check(dbc, HasLen, 0)
	}

	for _, dbc := range stmtCache.dbStmtCache {
		_, ok := dbc[stmtID]
		c.Check(ok, Equals, false)
	}
}

func (s *CacheSuite) checkDBNotInCache(c *C, dbID uint64) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	_, ok := stmtCache.dbStmtCache[dbID]
	c.Check(ok, Equals, false)

	for _, sc := range stmtCache.stmtDBCache {
		_, ok := sc[dbID]
		c.Check(ok, Equals, false)
	}
}

func (s *CacheSuite) checkNumDBStmts(c *C, dbID uint64, n int) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	sc, ok := stmtCache.dbStmtCache[dbID]
	c.Check(ok, Equals, true)
	c.Check(sc, HasLen, n)

	numDBStmts := 0
	for _, dbc := range stmtCache.stmtDBCache {
		if _, ok := dbc[dbID]; ok {
			numDBStmts += 1
		}
	}
	c.Check(numDBStmts, Equals, n)
}

func (s *CacheSuite) checkCacheEmpty(c *C) {
	stmtCache.mutex.RLock()
	defer stmtCache.mutex.RUnlock()
	c.Check(stmtCache.stmtDBCache, HasLen, 0)
	c.Check(stmtCache.dbStmtCache, HasLen, 0)
}

func (s *CacheSuite) checkDriverStmtsAllClosed(c *C) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(len(openedStmts[c.TestName()]), Equals, len(closedStmts[c.TestName()]))
}

func (s *CacheSuite) checkDriverStmtsOpened(c *C, n int) {
	stmtRegistryMutex.RLock()
	defer stmtRegistryMutex.RUnlock()
	c.Check(openedStmts[c.TestName()], HasLen, n)
}

func (s *CacheSuite) checkQueriesRunOnDB(c *C, n int) {
	queriesRunMutex.RLock()
	defer queriesRunMutex.RUnlock()
	c.Check(dbQueriesRun[c.TestName()], Equals, n)
}

func (s *CacheSuite) checkQueriesRunOnStmt(c *C, n int) {
	queriesRunMutex.RLock()
	defer queriesRunMutex.RUnlock()
	c.Check(stmtQueriesRun[c.TestName()], Equals, n)
}
