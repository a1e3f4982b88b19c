// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/canonical/sqltype/internal/expr"
)

// stmtIDCount and dbIDCount are used to generate unique IDs.
var stmtIDCount uint64
var dbIDCount uint64

type dbID = uint64
type stmtID = uint64

// statementCache caches the sql.Stmt objects associated with each
// sqltype.Statement. A sqltype.Statement can correspond to multiple sql.Stmt
// values on different databases. The cache is indexed by the
// sqltype.Statement ID and the sqltype.DB ID.
//
// The cache closes sql.Stmt objects with a finalizer on the
// sqltype.Statement. Similarly a finalizer is set on sqltype.DB objects to
// close all statements prepared on the DB, close the DB, and remove
// references to the DB from the cache.
//
// Only statements without list parameters are cached, the SQL of the others
// depends on their arguments.
//
// The mutex must be locked when accessing either the stmtDBCache or the
// dbStmtCache.
type statementCache struct {
	stmtDBCache map[stmtID]map[dbID]*sql.Stmt
	dbStmtCache map[dbID]map[stmtID]bool
	mutex       sync.RWMutex
}

// stmtCache stores the driver prepared statements associated with the
// sqltype Statement objects.
var stmtCache = &statementCache{
	stmtDBCache: map[stmtID]map[dbID]*sql.Stmt{},
	dbStmtCache: map[dbID]map[stmtID]bool{},
}

// newStatement returns a new sqltype.Statement and allocates it in the
// cache. A finalizer is set on the sqltype.Statement to remove all sql.Stmt
// values associated with it from the cache and then run Close on the
// sql.Stmt values. The finalizer is run after the sqltype.Statement is
// garbage collected.
func (sc *statementCache) newStatement(b *expr.Binding) *Statement {
	cacheID := atomic.AddUint64(&stmtIDCount, 1)
	s := &Statement{b: b, cacheID: cacheID}
	sc.mutex.Lock()
	sc.stmtDBCache[cacheID] = map[dbID]*sql.Stmt{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(s, sc.stmtFinalizer)
	return s
}

// newDB returns a new sqltype.DB and allocates it in the cache. A finalizer
// is set on the sqltype.DB which removes it from the cache, closes all
// sql.Stmt values prepared upon it and then closes the DB. The finalizer is
// run after the sqltype.DB is garbage collected.
func (sc *statementCache) newDB(sqldb *sql.DB) *DB {
	cacheID := atomic.AddUint64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[cacheID] = map[stmtID]bool{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, cacheID: cacheID}
	runtime.SetFinalizer(db, sc.dbFinalizer)
	return db
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a
// sql.DB or sql.Conn. It is used in prepareStmt.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// lookupStmt returns the driver statement of s prepared on the DB, if
// there is one.
func (sc *statementCache) lookupStmt(id dbID, s *Statement) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	sqlstmt, ok := sc.stmtDBCache[s.cacheID][id]
	return sqlstmt, ok
}

// prepareStmt prepares a Statement on a prepareSubstrate. It first checks
// in the cache to see if it has already been prepared on the DB. The
// prepareSubstrate must be associated with the same DB as id.
func (sc *statementCache) prepareStmt(ctx context.Context, id dbID, ps prepareSubstrate, s *Statement) (*sql.Stmt, error) {
	// The statement ID is only removed from the cache when the finalizer is
	// run, so it is always in stmtDBCache.
	if sqlstmt, ok := sc.lookupStmt(id, s); ok {
		return sqlstmt, nil
	}
	sqlstmt, err := ps.PrepareContext(ctx, s.b.SQL())
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if sqlstmtAlt, ok := sc.stmtDBCache[s.cacheID][id]; ok {
		sqlstmt.Close()
		return sqlstmtAlt, nil
	}
	sc.stmtDBCache[s.cacheID][id] = sqlstmt
	sc.dbStmtCache[id][s.cacheID] = true
	return sqlstmt, nil
}

// stmtFinalizer removes a Statement from the statement caches and closes
// its driver statements.
func (sc *statementCache) stmtFinalizer(s *Statement) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for dbCacheID, sqlstmt := range sc.stmtDBCache[s.cacheID] {
		sqlstmt.Close()
		delete(sc.dbStmtCache[dbCacheID], s.cacheID)
	}
	delete(sc.stmtDBCache, s.cacheID)
}

// dbFinalizer closes and removes from the cache all sql.Stmt values
// prepared on the database, removes the database from the cache, then
// closes the sql.DB.
func (sc *statementCache) dbFinalizer(db *DB) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for statementCacheID := range sc.dbStmtCache[db.cacheID] {
		dbCache := sc.stmtDBCache[statementCacheID]
		dbCache[db.cacheID].Close()
		delete(dbCache, db.cacheID)
	}
	delete(sc.dbStmtCache, db.cacheID)
	db.sqldb.Close()
}
