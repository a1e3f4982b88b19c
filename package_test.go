// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	. "gopkg.in/check.v1"

	"github.com/canonical/sqltype"
)

type PackageSuite struct{}

var _ = Suite(&PackageSuite{})

// personSchema is valid both for the checker and for SQLite.
const personSchema = `
DROP TABLE IF EXISTS person;
CREATE TABLE person (
	id int NOT NULL,
	name varchar(100) NOT NULL,
	address_id int,
	email text
);
DROP TABLE IF EXISTS address;
CREATE TABLE address (
	id int NOT NULL,
	district text NOT NULL,
	street text
);
`

var personInserts = []string{
	"INSERT INTO person VALUES (30, 'Fred', 1000, 'fred@email.com');",
	"INSERT INTO person VALUES (20, 'Mark', 1500, 'mark@email.com');",
	"INSERT INTO person VALUES (40, 'Mary', 3500, 'mary@email.com');",
	"INSERT INTO person VALUES (35, 'James', 4500, NULL);",
	"INSERT INTO address VALUES (1000, 'Happy Land', 'Main Street');",
	"INSERT INTO address VALUES (1500, 'Sad World', 'Church Road');",
	"INSERT INTO address VALUES (3500, 'Ambivalent Commons', NULL);",
}

type Address struct {
	ID       int     `db:"id"`
	District string  `db:"district"`
	Street   *string `db:"street"`
}

type Person struct {
	ID         int    `db:"id"`
	Fullname   string `db:"name"`
	PostalCode *int   `db:"address_id"`
}

type PostalOnly struct {
	Code int `db:"address_id"`
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func personDB(c *C) (*sqltype.Schema, *sqltype.DB) {
	schema, err := sqltype.ParseSchema(personSchema, sqltype.Options{})
	c.Assert(err, IsNil)

	sqldb, err := sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
	// Every connection of an in memory database is a new database.
	sqldb.SetMaxOpenConns(1)
	_, err = sqldb.Exec(personSchema)
	c.Assert(err, IsNil)
	for _, insert := range personInserts {
		_, err := sqldb.Exec(insert)
		c.Assert(err, IsNil)
	}
	return schema, sqltype.NewDB(sqldb)
}

func (s *PackageSuite) TestPrepare(c *C) {
	schema, _ := personDB(c)
	stmt, err := schema.Prepare("SELECT p.name, a.street FROM person AS p LEFT JOIN address AS a ON p.address_id = a.id WHERE p.id = ?")
	c.Assert(err, IsNil)

	c.Assert(stmt.Params(), HasLen, 1)
	c.Check(stmt.Params()[0].Full.String(), Equals, "i32")
	c.Assert(stmt.Columns(), HasLen, 2)
	c.Check(stmt.Columns()[0].Name, Equals, "name")
	c.Check(stmt.Columns()[0].Full.String(), Equals, "text(100)")
	c.Check(stmt.Columns()[1].Name, Equals, "street")
	c.Check(stmt.Columns()[1].Full.String(), Equals, "nullable text")
}

func (s *PackageSuite) TestPrepareErrors(c *C) {
	schema, _ := personDB(c)
	tests := []struct {
		query string
		kind  sqltype.ErrorKind
		err   string
	}{{
		query: "SELECT nope FROM person",
		kind:  sqltype.UnknownColumn,
		err:   `cannot check query: column 8: unknown column "nope"`,
	}, {
		query: "SELECT name FROM people",
		kind:  sqltype.UnknownTable,
		err:   `cannot check query: column 18: unknown table "people"`,
	}, {
		query: "INSERT INTO person (id, name) VALUES (1, NULL)",
		kind:  sqltype.NullIntoNotNull,
		err:   `cannot check query: column \d+: column "name" of table "person" cannot be NULL`,
	}, {
		query: "SELECT ? FROM person",
		kind:  sqltype.AmbiguousPlaceholder,
		err:   `cannot check query: column 8: cannot determine the type of placeholder \?`,
	}, {
		query: "SELECT name FROM",
		kind:  sqltype.UnexpectedToken,
		err:   `cannot parse query: column 17: expected .*`,
	}}
	for i, test := range tests {
		_, err := schema.Prepare(test.query)
		c.Assert(err, ErrorMatches, test.err, Commentf("test %d failed (%s)", i, test.query))
		var e *sqltype.Error
		c.Assert(errors.As(err, &e), Equals, true)
		c.Check(e.Kind, Equals, test.kind, Commentf("test %d failed (%s)", i, test.query))
	}
}

func (s *PackageSuite) TestValidGet(c *C) {
	schema, db := personDB(c)

	var p Person
	stmt := schema.MustPrepare("SELECT id, name, address_id FROM person WHERE id = ?")
	err := db.Query(nil, stmt, 30).Get(&p)
	c.Assert(err, IsNil)
	c.Check(p, DeepEquals, Person{ID: 30, Fullname: "Fred", PostalCode: intPtr(1000)})

	p = Person{}
	m := sqltype.M{}
	stmt = schema.MustPrepare("SELECT p.id, p.name, a.district FROM person AS p JOIN address AS a ON p.address_id = a.id WHERE p.name = ?")
	err = db.Query(nil, stmt, "Mark").Get(&p, m)
	c.Assert(err, IsNil)
	c.Check(p, DeepEquals, Person{ID: 20, Fullname: "Mark"})
	c.Check(m, DeepEquals, sqltype.M{"district": "Sad World"})

	var n uint64
	stmt = schema.MustPrepare("SELECT COUNT(*) FROM person")
	err = db.Query(nil, stmt).Get(&n)
	c.Assert(err, IsNil)
	c.Check(n, Equals, uint64(4))

	var name string
	street := strPtr("not scanned yet")
	stmt = schema.MustPrepare("SELECT p.name, a.street FROM person AS p LEFT JOIN address AS a ON p.address_id = a.id WHERE p.id = ?")
	err = db.Query(nil, stmt, 35).Get(&name, &street)
	c.Assert(err, IsNil)
	c.Check(name, Equals, "James")
	c.Check(street, IsNil)
}

func (s *PackageSuite) TestErrNoRows(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT name FROM person WHERE id = ?")
	var name string
	err := db.Query(nil, stmt, 1).Get(&name)
	c.Assert(errors.Is(err, sqltype.ErrNoRows), Equals, true)

	var names []string
	err = db.Query(nil, stmt, 1).GetAll(&names)
	c.Assert(errors.Is(err, sqltype.ErrNoRows), Equals, true)
}

func (s *PackageSuite) TestValidGetAll(c *C) {
	schema, db := personDB(c)

	var people []Person
	stmt := schema.MustPrepare("SELECT id, name, address_id FROM person ORDER BY id")
	err := db.Query(nil, stmt).GetAll(&people)
	c.Assert(err, IsNil)
	c.Check(people, DeepEquals, []Person{
		{ID: 20, Fullname: "Mark", PostalCode: intPtr(1500)},
		{ID: 30, Fullname: "Fred", PostalCode: intPtr(1000)},
		{ID: 35, Fullname: "James", PostalCode: intPtr(4500)},
		{ID: 40, Fullname: "Mary", PostalCode: intPtr(3500)},
	})

	var peoplePtrs []*Person
	var addresses []sqltype.M
	stmt = schema.MustPrepare("SELECT p.id, p.name, a.street FROM person AS p JOIN address AS a ON p.address_id = a.id ORDER BY p.id")
	err = db.Query(nil, stmt).GetAll(&peoplePtrs, &addresses)
	c.Assert(err, IsNil)
	c.Check(peoplePtrs, DeepEquals, []*Person{
		{ID: 20, Fullname: "Mark"},
		{ID: 30, Fullname: "Fred"},
		{ID: 40, Fullname: "Mary"},
	})
	c.Check(addresses, DeepEquals, []sqltype.M{
		{"street": "Church Road"},
		{"street": "Main Street"},
		{"street": nil},
	})

	var names []string
	var ids []int64
	stmt = schema.MustPrepare("SELECT name, id FROM person WHERE id IN (_LIST_) ORDER BY id")
	err = db.Query(nil, stmt, []int{20, 40, 99}).GetAll(&names, &ids)
	c.Assert(err, IsNil)
	c.Check(names, DeepEquals, []string{"Mark", "Mary"})
	c.Check(ids, DeepEquals, []int64{20, 40})
}

func (s *PackageSuite) TestGetAllErrors(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT id, name FROM person")

	err := db.Query(nil, stmt).GetAll([]Person{})
	c.Check(err, ErrorMatches, "need pointer to slice, got slice")

	var people []Person
	err = db.Query(nil, stmt).GetAll(&people, (*[]Person)(nil))
	c.Check(err, ErrorMatches, "need pointer to slice, got nil")

	var p Person
	err = db.Query(nil, stmt).GetAll(&p)
	c.Check(err, ErrorMatches, "need pointer to slice, got pointer to struct")

	var ptrs []*int
	err = db.Query(nil, stmt).GetAll(&ptrs)
	c.Check(err, ErrorMatches, "need slice of structs/maps, got slice of pointer to int")

	insert := schema.MustPrepare("INSERT INTO address (id, district) VALUES (?, ?)")
	err = db.Query(nil, insert, 1, "x").GetAll(&people)
	c.Check(err, ErrorMatches, "output variables provided but statement has no result columns")
}

func (s *PackageSuite) TestIter(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT a.id, a.district, a.street FROM address AS a WHERE a.id > ? ORDER BY a.id")

	iter := db.Query(context.Background(), stmt, 1000).Iter()
	var addresses []Address
	for iter.Next() {
		var a Address
		c.Assert(iter.Get(&a), IsNil)
		addresses = append(addresses, a)
	}
	c.Assert(iter.Close(), IsNil)
	c.Check(addresses, DeepEquals, []Address{
		{ID: 1500, District: "Sad World", Street: strPtr("Church Road")},
		{ID: 3500, District: "Ambivalent Commons"},
	})

	// Close can be called more than once.
	c.Assert(iter.Close(), IsNil)
	c.Check(iter.Next(), Equals, false)
	c.Check(iter.Get(&Address{}), ErrorMatches, "cannot get result: iteration ended")
}

func (s *PackageSuite) TestIterGetErrors(c *C) {
	schema, db := personDB(c)

	tests := []struct {
		summary string
		query   string
		args    []any
		outputs []any
		err     string
	}{{
		summary: "nullable column into value",
		query:   "SELECT address_id FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{&PostalOnly{}},
		err:     `cannot get result: column "address_id" into field PostalOnly.Code: cannot scan nullable i32 into int, need a pointer`,
	}, {
		summary: "column not in any output",
		query:   "SELECT id, email FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{&Person{}},
		err:     `cannot get result: column "email" not found in any output argument`,
	}, {
		summary: "struct without columns",
		query:   "SELECT id FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{&Person{}, &Address{}},
		err:     `cannot get result: no column of the query matches a db tag of "Address"`,
	}, {
		summary: "positional count mismatch",
		query:   "SELECT id, name FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{new(int)},
		err:     "cannot get result: expected 2 output arguments but got 1",
	}, {
		summary: "positional type mismatch",
		query:   "SELECT name FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{new(int)},
		err:     `cannot get result: column "name": cannot use int for text\(100\)`,
	}, {
		summary: "not a pointer",
		query:   "SELECT id FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{Person{}},
		err:     "cannot get result: need map or pointer to struct, got struct",
	}, {
		summary: "nil output",
		query:   "SELECT id FROM person WHERE id = ?",
		args:    []any{30},
		outputs: []any{nil},
		err:     "cannot get result: need map or pointer to struct, got nil",
	}}
	for i, test := range tests {
		stmt := schema.MustPrepare(test.query)
		iter := db.Query(nil, stmt, test.args...).Iter()
		c.Assert(iter.Next(), Equals, true, Commentf("test %d failed (%s)", i, test.summary))
		err := iter.Get(test.outputs...)
		c.Check(err, ErrorMatches, test.err, Commentf("test %d failed (%s)", i, test.summary))
		c.Assert(iter.Close(), IsNil)
	}
}

func (s *PackageSuite) TestIterMethodOrder(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT id, name FROM person")

	iter := db.Query(nil, stmt).Iter()
	err := iter.Get(&Person{})
	c.Check(err, ErrorMatches, "cannot get result: cannot call Get before Next unless getting outcome")
	c.Assert(iter.Close(), IsNil)

	var oc sqltype.Outcome
	iter = db.Query(nil, stmt).Iter()
	c.Assert(iter.Get(&oc), IsNil)
	c.Assert(iter.Close(), IsNil)
}

func (s *PackageSuite) TestArgumentErrors(c *C) {
	schema, db := personDB(c)

	tests := []struct {
		summary string
		query   string
		args    []any
		err     string
	}{{
		summary: "wrong go type",
		query:   "SELECT name FROM person WHERE id = ?",
		args:    []any{"thirty"},
		err:     "invalid input parameter: column 36: argument 1: cannot use string for i32",
	}, {
		summary: "wrong number of arguments",
		query:   "SELECT name FROM person WHERE id = ?",
		args:    []any{30, 31},
		err:     "invalid input parameter: expected 1 arguments but got 2",
	}, {
		summary: "nil for not null column",
		query:   "INSERT INTO person (id, name, address_id, email) VALUES (?, ?, ?, ?)",
		args:    []any{50, nil, nil, nil},
		err:     `invalid input parameter: column 61: argument 2: cannot pass nil for non-nullable text\(100\)`,
	}, {
		summary: "string too long",
		query:   "UPDATE person SET name = ? WHERE id = ?",
		args:    []any{string(make([]byte, 101)), 30},
		err:     `invalid input parameter: column 26: argument 1: string of length 101 is longer than text\(100\)`,
	}}
	for i, test := range tests {
		stmt := schema.MustPrepare(test.query)
		err := db.Query(nil, stmt, test.args...).Run()
		c.Check(err, ErrorMatches, test.err, Commentf("test %d failed (%s)", i, test.summary))
		var e *sqltype.Error
		c.Assert(errors.As(err, &e), Equals, true)
		c.Check(e.Kind, Equals, sqltype.ArgumentMismatch)
	}
}

func (s *PackageSuite) TestRun(c *C) {
	schema, db := personDB(c)

	insert := schema.MustPrepare("INSERT INTO person (id, name, address_id, email) VALUES (?, ?, ?, ?)")
	var outcome sqltype.Outcome
	err := db.Query(nil, insert, 50, "Jim", nil, (*string)(nil)).Get(&outcome)
	c.Assert(err, IsNil)
	n, err := outcome.Result().RowsAffected()
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(1))

	update := schema.MustPrepare("UPDATE person SET email = ? WHERE id = ?")
	err = db.Query(nil, update, "jim@email.com", 50).Run()
	c.Assert(err, IsNil)

	var email *string
	stmt := schema.MustPrepare("SELECT email FROM person WHERE id = ?")
	err = db.Query(nil, stmt, 50).Get(&email)
	c.Assert(err, IsNil)
	c.Check(*email, Equals, "jim@email.com")

	err = db.Query(nil, update, "x", 50).Get(&email)
	c.Check(err, ErrorMatches, "cannot get results: output variables provided but statement has no result columns")
}

func (s *PackageSuite) TestOutcome(c *C) {
	schema, db := personDB(c)

	var oc sqltype.Outcome
	del := schema.MustPrepare("DELETE FROM address WHERE id IN (_LIST_)")
	err := db.Query(nil, del, []int{1000, 1500}).Get(&oc)
	c.Assert(err, IsNil)
	n, err := oc.Result().RowsAffected()
	c.Assert(err, IsNil)
	c.Check(n, Equals, int64(2))

	var districts []string
	sel := schema.MustPrepare("SELECT district FROM address")
	err = db.Query(nil, sel).GetAll(&oc, &districts)
	c.Assert(err, IsNil)
	c.Check(oc.Result(), IsNil)
	c.Check(districts, DeepEquals, []string{"Ambivalent Commons"})
}

func (s *PackageSuite) TestQueryMultipleRuns(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT name FROM person WHERE id = ?")

	q := db.Query(nil, stmt, 20)
	var name string
	for i := 0; i < 3; i++ {
		c.Assert(q.Get(&name), IsNil)
		c.Check(name, Equals, "Mark")
	}
}

func (s *PackageSuite) TestTransactions(c *C) {
	schema, db := personDB(c)
	ctx := context.Background()
	insert := schema.MustPrepare("INSERT INTO address (id, district, street) VALUES (?, ?, ?)")
	count := schema.MustPrepare("SELECT COUNT(*) FROM address")

	tx, err := db.Begin(ctx, nil)
	c.Assert(err, IsNil)
	c.Assert(tx.Query(ctx, insert, 9000, "Nowhere", nil).Run(), IsNil)
	var n uint64
	c.Assert(tx.Query(ctx, count).Get(&n), IsNil)
	c.Check(n, Equals, uint64(4))
	c.Assert(tx.Rollback(), IsNil)

	c.Assert(db.Query(ctx, count).Get(&n), IsNil)
	c.Check(n, Equals, uint64(3))

	tx, err = db.Begin(ctx, &sqltype.TXOptions{})
	c.Assert(err, IsNil)
	c.Assert(tx.Query(ctx, insert, 9000, "Nowhere", nil).Run(), IsNil)
	c.Assert(tx.Commit(), IsNil)

	c.Assert(db.Query(ctx, count).Get(&n), IsNil)
	c.Check(n, Equals, uint64(4))
}

func (s *PackageSuite) TestTransactionErrors(c *C) {
	schema, db := personDB(c)
	stmt := schema.MustPrepare("SELECT name FROM person")

	tx, err := db.Begin(nil, nil)
	c.Assert(err, IsNil)
	c.Assert(tx.Commit(), IsNil)

	err = tx.Query(nil, stmt).Run()
	c.Assert(err, Equals, sqltype.ErrTXDone)
	c.Assert(tx.Commit(), Equals, sqltype.ErrTXDone)
	c.Assert(tx.Rollback(), Equals, sqltype.ErrTXDone)
}

func (s *PackageSuite) TestPostgresPlaceholders(c *C) {
	schema, err := sqltype.ParseSchema(`-- sql-product: postgres
CREATE TABLE p (
	id serial PRIMARY KEY,
	name text NOT NULL,
	score integer
);`, sqltype.Options{})
	c.Assert(err, IsNil)
	c.Check(schema.Dialect(), Equals, sqltype.PostgreSQL)

	stmt, err := schema.Prepare("SELECT name FROM p WHERE score > $2 AND id <> $1 AND score < $2")
	c.Assert(err, IsNil)
	c.Assert(stmt.Params(), HasLen, 2)
	c.Check(stmt.Params()[0].Number, Equals, 1)
	c.Check(stmt.Params()[1].Number, Equals, 2)
	c.Check(stmt.Params()[1].Uses, HasLen, 2)

	_, err = schema.Prepare("SELECT name FROM p WHERE id = ?")
	c.Assert(err, NotNil)
}

func (s *PackageSuite) TestCustomFunctions(c *C) {
	funcs := sqltype.Registry{
		"SLUG": {
			Params: []sqltype.FunctionArg{{Type: sqltype.TextOf(0)}},
			Result: func(_ sqltype.FullType, args []sqltype.FullType) sqltype.FullType {
				return sqltype.FullType{Type: sqltype.TextOf(0), Nullable: args[0].Nullable}
			},
		},
	}
	schema, err := sqltype.ParseSchema(personSchema, sqltype.Options{Functions: funcs})
	c.Assert(err, IsNil)

	stmt, err := schema.Prepare("SELECT SLUG(name) AS slug, SLUG(email) FROM person")
	c.Assert(err, IsNil)
	c.Check(stmt.Columns()[0].Name, Equals, "slug")
	c.Check(stmt.Columns()[0].Full.String(), Equals, "text")
	c.Check(stmt.Columns()[1].Full.String(), Equals, "nullable text")
}

func (s *PackageSuite) TestSchemaFile(c *C) {
	dir := c.MkDir()
	nested := filepath.Join(dir, "a", "b")
	c.Assert(os.MkdirAll(nested, 0o755), IsNil)

	_, err := sqltype.FindSchemaFile(nested)
	c.Assert(err, ErrorMatches, "cannot find schema: no sqltype-schema.sql in .*")

	path := filepath.Join(dir, sqltype.SchemaFileName)
	c.Assert(os.WriteFile(path, []byte(personSchema), 0o644), IsNil)
	found, err := sqltype.FindSchemaFile(nested)
	c.Assert(err, IsNil)
	c.Check(found, Equals, path)

	schema, err := sqltype.LoadSchema(found, sqltype.Options{})
	c.Assert(err, IsNil)
	c.Check(schema.Tables(), HasLen, 2)
	c.Check(schema.Table("person").Column("email").Nullable, Equals, true)

	c.Assert(os.WriteFile(path, []byte("CREATE TABLE x (a int);\nCREATE TABLE x (b int);"), 0o644), IsNil)
	_, err = sqltype.LoadSchema(found, sqltype.Options{})
	c.Assert(err, ErrorMatches, `.*sqltype-schema.sql: cannot parse schema: line 2, column \d+: .*`)
}

func (s *PackageSuite) TestRender(c *C) {
	schema, _ := personDB(c)
	query := "SELECT nope FROM person"
	_, err := schema.Prepare(query)
	c.Assert(err, NotNil)
	c.Check(sqltype.Render("query", query, err), Equals, `error[UnknownColumn]: unknown column "nope"
  --> query:1:8
  |
1 | SELECT nope FROM person
  |        ^^^^
`)
}
