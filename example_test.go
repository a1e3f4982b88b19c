// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqltype_test

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqltype"
)

type Location struct {
	ID   int    `db:"room_id"`
	Name string `db:"name"`
	Team string `db:"team"`
}

type Employee struct {
	Name string `db:"name"`
	ID   int    `db:"id"`
	Team string `db:"team"`
}

const exampleSchema = `
CREATE TABLE person (
	name text NOT NULL,
	id int NOT NULL,
	team text NOT NULL
);
CREATE TABLE location (
	room_id int NOT NULL,
	name text NOT NULL,
	team text NOT NULL
);
`

func Example() {
	schema := sqltype.MustParseSchema(exampleSchema, sqltype.Options{})

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(exampleSchema); err != nil {
		panic(err)
	}
	db := sqltype.NewDB(sqldb)

	// Query to populate the person table. The arguments are checked against
	// the types of the columns.
	insertEmployee := schema.MustPrepare(`
		INSERT INTO person (name, id, team)
		VALUES (?, ?, ?)`,
	)

	var al = Employee{"Alastair", 1, "engineering"}
	var ed = Employee{"Ed", 2, "engineering"}
	var marco = Employee{"Marco", 3, "engineering"}
	var pedro = Employee{"Pedro", 4, "management"}
	var serdar = Employee{"Serdar", 5, "presentation engineering"}
	var joe = Employee{"Joe", 6, "marketing"}
	var ben = Employee{"Ben", 7, "legal"}
	var sam = Employee{"Sam", 8, "hr"}
	var paul = Employee{"Paul", 9, "sales"}
	var mark = Employee{"Mark", 10, "leadership"}
	var people = []Employee{ed, al, marco, pedro, serdar, joe, ben, sam, paul, mark}
	for _, p := range people {
		err := db.Query(nil, insertEmployee, p.Name, p.ID, p.Team).Run()
		if err != nil {
			panic(err)
		}
	}

	// Query to populate the location table.
	insertLocation := schema.MustPrepare(`
		INSERT INTO location (name, room_id, team)
		VALUES (?, ?, ?)`,
	)

	l1 := Location{1, "The Basement", "engineering"}
	l2 := Location{8, "Floor 2", "presentation engineering"}
	l3 := Location{10, "Floor 3", "management"}
	l4 := Location{19, "Floors 4 to 89", "hr"}
	l5 := Location{23, "Court", "legal"}
	l6 := Location{26, "The Market", "marketing"}
	l7 := Location{46, "The Bar", "Sales"}
	l8 := Location{73, "The Penthouse", "leadership"}
	var locations = []Location{l1, l2, l3, l4, l5, l6, l7, l8}
	for _, l := range locations {
		err := db.Query(nil, insertLocation, l.Name, l.ID, l.Team).Run()
		if err != nil {
			panic(err)
		}
	}

	// Example 1
	// Find someone on the engineering team.
	selectSomeoneInTeam := schema.MustPrepare(`
		SELECT name, id, team
		FROM person
		WHERE team = ?`,
	)

	// Get returns a single result.
	var pal = Employee{}
	team := "engineering"
	err = db.Query(nil, selectSomeoneInTeam, team).Get(&pal)
	if err != nil {
		panic(err)
	}

	fmt.Printf("%s is on the %s team\n", pal.Name, team)

	// Example 2
	// Find out who is in location l1.

	// GetAll returns all the results.
	var roomDwellers = []Employee{}
	err = db.Query(nil, selectSomeoneInTeam, l1.Team).GetAll(&roomDwellers)
	if err != nil {
		panic(err)
	}

	for _, p := range roomDwellers {
		fmt.Printf("%s, ", p.Name)
	}
	fmt.Printf("are in %s\n", l1.Name)

	// Example 3
	// Print out who is in which room.
	selectPeopleAndRoom := schema.MustPrepare(`
		SELECT l.name AS room, p.name
		FROM location AS l
		JOIN person AS p
		ON p.team = l.team
		ORDER BY l.room_id, p.id`,
	)

	// Results can be iterated through with an Iterator.
	// iter.Next prepares the next result.
	// iter.Get reads it into the output arguments, here one per column.
	// iter.Close closes the query returning any errors. It must be called after iteration is finished.
	iter := db.Query(nil, selectPeopleAndRoom).Iter()
	for iter.Next() {
		var room, name string
		err := iter.Get(&room, &name)
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s is in %s\n", name, room)
	}
	err = iter.Close()
	if err != nil {
		panic(err)
	}

	// Output:
	// Ed is on the engineering team
	// Ed, Alastair, Marco, are in The Basement
	// Alastair is in The Basement
	// Ed is in The Basement
	// Marco is in The Basement
	// Serdar is in Floor 2
	// Pedro is in Floor 3
	// Sam is in Floors 4 to 89
	// Ben is in Court
	// Joe is in The Market
	// Mark is in The Penthouse
}

func ExampleSchema_Prepare() {
	schema := sqltype.MustParseSchema(exampleSchema, sqltype.Options{})

	stmt, err := schema.Prepare("SELECT p.id, l.room_id FROM person AS p LEFT JOIN location AS l ON l.team = p.team WHERE p.name = ?")
	if err != nil {
		panic(err)
	}
	for _, p := range stmt.Params() {
		fmt.Printf("param: %s\n", p.Full)
	}
	for _, col := range stmt.Columns() {
		fmt.Printf("column %s: %s\n", col.Name, col.Full)
	}

	_, err = schema.Prepare("SELECT nickname FROM person")
	fmt.Println(err)

	// Output:
	// param: text
	// column id: i32
	// column room_id: nullable i32
	// cannot check query: column 8: unknown column "nickname"
}
