// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package expr binds Go values to checked statements. It covers the parts of
running a statement that depend on its types but not on the database.

The package is split up into two stages: the Resolve stage and the Query
stage.

# Resolve stage

The Resolve stage takes the result of the type checker and turns it into a
Binding: the parameter slots of the statement in call order and its result
columns. Every slot and column must have a concrete type by this point; an
unresolved type is an internal error.

# Input Binding and Query stage

The Input Binding stage checks the Go arguments of a call against the
parameter slots and generates the SQL and driver arguments for the call.
A _LIST_ placeholder is expanded into one driver placeholder per element of
its argument, so only statements without lists are passed to the driver
unchanged.

The resulting PrimedQuery maps the result columns of the query onto the
output arguments given to Get. It does not interact with the database.
*/
package expr
