// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"strconv"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
	"github.com/canonical/sqltype/internal/types"
)

// ColumnType maps a declared column type to its semantic type.
func ColumnType(tn parse.TypeName, dialect parse.Dialect) (types.Type, error) {
	arg := func(i int) (int, bool) {
		if i >= len(tn.Args) {
			return 0, false
		}
		n, err := strconv.Atoi(tn.Args[i])
		return n, err == nil
	}
	integer := func(width int) (types.Type, error) {
		return types.Integer(width, tn.Unsigned), nil
	}

	switch tn.Name {
	case "bool", "boolean":
		return types.Of(types.Bool), nil
	case "tinyint":
		if n, ok := arg(0); ok && n == 1 && !tn.Unsigned {
			return types.Of(types.Bool), nil
		}
		return integer(8)
	case "smallint", "int2", "smallserial", "serial2":
		return integer(16)
	case "mediumint", "int", "integer", "int4", "serial4":
		return integer(32)
	case "bigint", "int8", "bigserial", "serial8":
		return integer(64)
	case "serial":
		if dialect == parse.PostgreSQL {
			return integer(32)
		}
		// SERIAL is BIGINT UNSIGNED NOT NULL AUTO_INCREMENT in MariaDB.
		return types.Integer(64, true), nil
	case "year":
		return types.Integer(16, false), nil
	case "bit":
		if n, ok := arg(0); !ok || n == 1 {
			return types.Of(types.Bool), nil
		}
		return types.Integer(64, true), nil
	case "float":
		if n, ok := arg(0); ok && len(tn.Args) == 1 && n > 24 {
			return types.Floating(64), nil
		}
		return types.Floating(32), nil
	case "float4":
		return types.Floating(32), nil
	case "real":
		if dialect == parse.PostgreSQL {
			return types.Floating(32), nil
		}
		return types.Floating(64), nil
	case "double", "float8":
		return types.Floating(64), nil
	case "decimal", "dec", "numeric", "fixed", "money":
		return types.Floating(64), nil
	case "char", "character", "nchar", "bpchar":
		if n, ok := arg(0); ok {
			return types.TextOf(uint32(n)), nil
		}
		return types.TextOf(1), nil
	case "varchar", "nvarchar", "varchar2":
		if n, ok := arg(0); ok {
			return types.TextOf(uint32(n)), nil
		}
		if dialect == parse.PostgreSQL {
			return types.TextOf(0), nil
		}
		return types.Type{}, diag.Errorf(diag.MalformedDDL, tn.At, "varchar requires a length")
	case "tinytext":
		return types.TextOf(255), nil
	case "text", "mediumtext", "longtext", "citext", "uuid", "inet", "inet4", "inet6", "cidr", "macaddr", "xml":
		return types.TextOf(0), nil
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea":
		return types.Of(types.Bytes), nil
	case "date":
		return types.Of(types.Date), nil
	case "time", "timetz":
		return types.Of(types.Time), nil
	case "datetime":
		return types.Of(types.DateTime), nil
	case "timestamp", "timestamptz":
		return types.Of(types.Timestamp), nil
	case "enum":
		if len(tn.Args) == 0 {
			return types.Type{}, diag.Errorf(diag.MalformedDDL, tn.At, "enum requires at least one member")
		}
		return types.EnumOf(tn.Args...), nil
	case "set":
		return types.SetOf(tn.Args...), nil
	case "json", "jsonb":
		return types.Of(types.JSON), nil
	}
	return types.Type{}, diag.Errorf(diag.MalformedDDL, tn.At, "unknown column type %q", tn.Name)
}
