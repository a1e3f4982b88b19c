package a

import (
	"context"

	"github.com/canonical/sqltype"
)

var schema *sqltype.Schema

const selectNickname = "SELECT nickname FROM person WHERE id = ?"

var insertPerson = schema.MustPrepare("INSERT INTO person (name, team, nickname) VALUES (?, ?, ?)")

func prepared() {
	schema.MustPrepare(selectNickname)
	schema.MustPrepare("SELECT nick FROM person") // want `UnknownColumn: unknown column "nick"`
	schema.MustPrepare(`SELECT name FROM persons`) // want `UnknownTable: unknown table "persons"`
	schema.Prepare("SELECT FROM person")           // want `UnexpectedToken: `
	dynamic := "SELECT nick FROM person"
	schema.MustPrepare(dynamic)
}

func arguments(ctx context.Context, db *sqltype.DB, tx *sqltype.TX) {
	db.Query(ctx, insertPerson, "bob", "eng", nil)
	db.Query(ctx, insertPerson, "bob", "eng")                       // want `ArgumentMismatch: expected 3 arguments but got 2`
	db.Query(ctx, insertPerson, "a very long name", "eng", nil)     // want `argument 1: string of length 16 is longer than text\(10\)`
	db.Query(ctx, insertPerson, "bob", "dev", nil)                  // want `argument 2: "dev" is not a valid enum`
	db.Query(ctx, insertPerson, nil, "eng", nil)                    // want `argument 1: cannot pass nil for non-nullable text\(10\)`
	tx.Query(ctx, insertPerson, 1, "eng", nil)                      // want `argument 1: cannot use int for text\(10\)`
	tx.Query(ctx, insertPerson, "bob", "eng", "bobby")
	args := []any{"bob", "eng", nil}
	db.Query(ctx, insertPerson, args...)

	var name string
	var nickname *string
	db.Query(ctx, insertPerson, name, "ops", nickname)

	byID := schema.MustPrepare(selectNickname)
	db.Query(ctx, byID, -1) // want `argument 1: value -1 out of range for u32`
	db.Query(ctx, byID, uint32(7))
	db.Query(ctx, byID, "7") // want `argument 1: cannot use string for u32`

	byHeight := schema.MustPrepare("SELECT name FROM person WHERE height > ?")
	db.Query(ctx, byHeight, 1.85)
	db.Query(ctx, byHeight, true) // want `argument 1: cannot use bool for f64`
	db.Query(ctx, schema.MustPrepare("SELECT name FROM person WHERE id IN (_LIST_)"), []int{1, 2})
	db.Query(ctx, schema.MustPrepare("SELECT name FROM person WHERE id IN (_LIST_)"), 1) // want `argument 1: need slice for _LIST_, got int`

	reused := schema.MustPrepare(selectNickname)
	reused = schema.MustPrepare("SELECT name FROM person")
	db.Query(ctx, reused)
}
