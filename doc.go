// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Sqltype statically type checks SQL statements against a schema and runs them
with typed arguments and results.

A schema is a sequence of DDL statements, usually a dump of the database:

	DROP TABLE IF EXISTS person;
	CREATE TABLE person (
		id int(11) NOT NULL AUTO_INCREMENT,
		name varchar(100) NOT NULL,
		team_id int UNSIGNED,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

	ALTER TABLE person MODIFY team_id int UNSIGNED NOT NULL;

The statements are applied in order to build the catalog of tables and
columns. Queries are then checked against the catalog when they are
prepared:

	schema := sqltype.MustParseSchema(schemaText, sqltype.Options{})
	stmt, err := schema.Prepare("SELECT name, team_id FROM person WHERE id = ?")

Preparing a statement reports unknown tables and columns, type mismatches,
NULL written into NOT NULL columns and placeholders whose type cannot be
determined. Every error is a located *Error with a kind from the error
taxonomy.

# Parameters and results

A prepared statement has a list of parameter slots in call order, each with
a type and whether it accepts NULL, and a list of result columns in
projection order. Outer joins make the columns of the outer side nullable
and aggregates over no rows are nullable.

Placeholders are ? in the MariaDB dialect and $1, $2, ... in the PostgreSQL
dialect. The dialect is MariaDB unless the first line of the schema
contains a product declaration:

	-- sql-product: postgres

In the MariaDB dialect _LIST_ may be used as the list of IN (...). It takes
a slice argument and is expanded into one placeholder per element.

# Running statements

Statements are run on a DB or TX. The arguments of a query are checked
against the parameter slots before the query reaches the database:

	var p Person
	err := db.Query(ctx, stmt, 1).Get(&p)

Results are scanned into structs with db tags, maps with string keys, or a
pointer per column. Nullable columns must be scanned into a pointer, an
sql.Scanner or an interface value.
*/
package sqltype
