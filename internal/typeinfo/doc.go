// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their use as the
arguments and results of checked statements. As much as possible, reflection
code is limited to this package. It contains the logic for validating Go
values against parameter types, extracting information from "db" tagged
structs and scanning result columns into Go values.
*/
package typeinfo
