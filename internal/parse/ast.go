// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse

import (
	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/types"
)

// Node is implemented by every element of the syntax tree.
type Node interface {
	// Span returns the range of the source text the node was parsed from.
	Span() diag.Span
}

// Expr is a value expression.
type Expr interface {
	Node
	exprNode()
}

// Statement is a parsed DML or DDL statement.
type Statement interface {
	Node
	stmtNode()
}

// TableExpr is an element of a FROM clause.
type TableExpr interface {
	Node
	tableNode()
}

// Ident is a name together with where it was written.
type Ident struct {
	Name string
	At   diag.Span
}

func (i Ident) Span() diag.Span { return i.At }

// ColumnRef is a possibly qualified column name.
type ColumnRef struct {
	Table  string
	Column string
	At     diag.Span
}

// String returns the reference as written, without quoting.
func (c *ColumnRef) String() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Literal is a constant.
type Literal struct {
	Value types.Literal
	At    diag.Span
}

// Placeholder is a parameter slot. Index counts the placeholders of a
// statement in source order from zero. Number is the n of a $n placeholder
// and zero for ?. List is set for the _LIST_ placeholder, which stands for a
// comma separated list of values inside IN (...).
type Placeholder struct {
	Index  int
	Number int
	List   bool
	At     diag.Span
}

type BinaryOperator int

const (
	OpOr BinaryOperator = iota
	OpXor
	OpAnd
	OpEq
	OpNullSafeEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpRegexp
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIntDiv
	OpMod
	OpBitOr
	OpBitAnd
	OpBitXor
	OpShiftLeft
	OpShiftRight
	OpConcat
)

var binaryOperatorNames = []string{
	OpOr:         "OR",
	OpXor:        "XOR",
	OpAnd:        "AND",
	OpEq:         "=",
	OpNullSafeEq: "<=>",
	OpNe:         "<>",
	OpLt:         "<",
	OpLe:         "<=",
	OpGt:         ">",
	OpGe:         ">=",
	OpLike:       "LIKE",
	OpRegexp:     "REGEXP",
	OpAdd:        "+",
	OpSub:        "-",
	OpMul:        "*",
	OpDiv:        "/",
	OpIntDiv:     "DIV",
	OpMod:        "%",
	OpBitOr:      "|",
	OpBitAnd:     "&",
	OpBitXor:     "^",
	OpShiftLeft:  "<<",
	OpShiftRight: ">>",
	OpConcat:     "||",
}

func (op BinaryOperator) String() string {
	return binaryOperatorNames[op]
}

// IsComparison reports whether op compares its operands.
func (op BinaryOperator) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op is a boolean connective.
func (op BinaryOperator) IsLogical() bool {
	return op <= OpAnd
}

// IsArithmetic reports whether op is a numeric operator.
func (op BinaryOperator) IsArithmetic() bool {
	return op >= OpAdd && op <= OpMod
}

// IsBitwise reports whether op is a bit operator.
func (op BinaryOperator) IsBitwise() bool {
	return op >= OpBitOr && op <= OpShiftRight
}

// BinaryOp is an infix operation. Not is set for NOT LIKE and NOT REGEXP.
type BinaryOp struct {
	Op          BinaryOperator
	Not         bool
	Left, Right Expr
	// Escape is the optional ESCAPE clause of LIKE.
	Escape Expr
	At     diag.Span
}

type UnaryOperator int

const (
	OpNot UnaryOperator = iota
	OpNeg
	OpPlus
	OpBitNot
)

// UnaryOp is a prefix operation.
type UnaryOp struct {
	Op      UnaryOperator
	Operand Expr
	At      diag.Span
}

// FunctionCall is a call to a built-in or aggregate function. Name is upper
// case. Star is set for COUNT(*).
type FunctionCall struct {
	Name     string
	Args     []Expr
	Star     bool
	Distinct bool
	// OrderBy and Separator are the optional GROUP_CONCAT clauses.
	OrderBy   []OrderItem
	Separator Expr
	At        diag.Span
}

// Subquery is a parenthesised SELECT used as a scalar value.
type Subquery struct {
	Select *Select
	At     diag.Span
}

// Exists is EXISTS (SELECT ...).
type Exists struct {
	Select *Select
	At     diag.Span
}

// InList is expr [NOT] IN (a, b, ...).
type InList struct {
	Expr Expr
	List []Expr
	Not  bool
	At   diag.Span
}

// InSubquery is expr [NOT] IN (SELECT ...).
type InSubquery struct {
	Expr   Expr
	Select *Select
	Not    bool
	At     diag.Span
}

// Between is expr [NOT] BETWEEN low AND high.
type Between struct {
	Expr      Expr
	Low, High Expr
	Not       bool
	At        diag.Span
}

type IsValue int

const (
	IsNull IsValue = iota
	IsTrue
	IsFalse
	IsUnknown
)

// Is is expr IS [NOT] NULL, TRUE, FALSE or UNKNOWN.
type Is struct {
	Expr  Expr
	Value IsValue
	Not   bool
	At    diag.Span
}

// When is a single WHEN ... THEN ... arm of a CASE expression.
type When struct {
	Cond   Expr
	Result Expr
}

// Case is a simple CASE when Operand is set, or a searched CASE otherwise.
type Case struct {
	Operand Expr
	Whens   []When
	Else    Expr
	At      diag.Span
}

// Cast is CAST(expr AS type) or CONVERT(expr, type).
type Cast struct {
	Expr Expr
	Type TypeName
	At   diag.Span
}

// Interval is INTERVAL expr unit, valid in date arithmetic.
type Interval struct {
	Expr Expr
	Unit string
	At   diag.Span
}

// Default is the DEFAULT keyword used as a value in INSERT or UPDATE.
type Default struct {
	At diag.Span
}

func (e *ColumnRef) Span() diag.Span    { return e.At }
func (e *Literal) Span() diag.Span      { return e.At }
func (e *Placeholder) Span() diag.Span  { return e.At }
func (e *BinaryOp) Span() diag.Span     { return e.At }
func (e *UnaryOp) Span() diag.Span      { return e.At }
func (e *FunctionCall) Span() diag.Span { return e.At }
func (e *Subquery) Span() diag.Span     { return e.At }
func (e *Exists) Span() diag.Span       { return e.At }
func (e *InList) Span() diag.Span       { return e.At }
func (e *InSubquery) Span() diag.Span   { return e.At }
func (e *Between) Span() diag.Span      { return e.At }
func (e *Is) Span() diag.Span           { return e.At }
func (e *Case) Span() diag.Span         { return e.At }
func (e *Cast) Span() diag.Span         { return e.At }
func (e *Interval) Span() diag.Span     { return e.At }
func (e *Default) Span() diag.Span      { return e.At }

func (*ColumnRef) exprNode()    {}
func (*Literal) exprNode()      {}
func (*Placeholder) exprNode()  {}
func (*BinaryOp) exprNode()     {}
func (*UnaryOp) exprNode()      {}
func (*FunctionCall) exprNode() {}
func (*Subquery) exprNode()     {}
func (*Exists) exprNode()       {}
func (*InList) exprNode()       {}
func (*InSubquery) exprNode()   {}
func (*Between) exprNode()      {}
func (*Is) exprNode()           {}
func (*Case) exprNode()         {}
func (*Cast) exprNode()         {}
func (*Interval) exprNode()     {}
func (*Default) exprNode()      {}

// SelectItem is an entry of a select list or RETURNING clause. A bare * has
// Star set and an empty Table, t.* has Star set and Table t.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
	Table string
	At    diag.Span
}

// OrderItem is an ORDER BY entry.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// TableName is a named table in a FROM clause or the target of a statement.
type TableName struct {
	Name  string
	Alias string
	At    diag.Span
}

// RefName returns the name the table is referred to by in the statement.
func (t *TableName) RefName() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

type JoinKind int

const (
	InnerJoin JoinKind = iota
	CrossJoin
	LeftJoin
	RightJoin
	FullJoin
)

var joinKindNames = []string{
	InnerJoin: "INNER JOIN",
	CrossJoin: "CROSS JOIN",
	LeftJoin:  "LEFT JOIN",
	RightJoin: "RIGHT JOIN",
	FullJoin:  "FULL JOIN",
}

func (k JoinKind) String() string {
	return joinKindNames[k]
}

// Join joins Left and Right. At most one of On and Using is set.
type Join struct {
	Kind  JoinKind
	Left  TableExpr
	Right TableExpr
	On    Expr
	Using []Ident
	At    diag.Span
}

// DerivedTable is a subquery in a FROM clause.
type DerivedTable struct {
	Select *Select
	Alias  string
	At     diag.Span
}

func (t *TableName) Span() diag.Span    { return t.At }
func (t *Join) Span() diag.Span         { return t.At }
func (t *DerivedTable) Span() diag.Span { return t.At }

func (*TableName) tableNode()    {}
func (*Join) tableNode()         {}
func (*DerivedTable) tableNode() {}

// Select is a SELECT statement. Limit and Offset are nil when absent.
type Select struct {
	Distinct bool
	Items    []SelectItem
	From     []TableExpr
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderItem
	Limit    Expr
	Offset   Expr
	At       diag.Span
}

// Assignment is col = value in SET or ON DUPLICATE KEY UPDATE.
type Assignment struct {
	Column *ColumnRef
	Value  Expr
}

// Insert is an INSERT or REPLACE statement. Exactly one of Rows, Query and
// Set is populated.
type Insert struct {
	Replace     bool
	Ignore      bool
	Table       *TableName
	Columns     []Ident
	Rows        [][]Expr
	Query       *Select
	Set         []Assignment
	OnDuplicate []Assignment
	Returning   []SelectItem
	At          diag.Span
}

// Update is an UPDATE statement.
type Update struct {
	Tables  []TableExpr
	Set     []Assignment
	Where   Expr
	OrderBy []OrderItem
	Limit   Expr
	At      diag.Span
}

// Delete is a single table DELETE statement.
type Delete struct {
	Table     *TableName
	Where     Expr
	OrderBy   []OrderItem
	Limit     Expr
	Returning []SelectItem
	At        diag.Span
}

// TypeName is a column type as written in DDL or CAST. Name is lower case
// and Args holds the raw parenthesised arguments, such as the length of a
// VARCHAR or the members of an ENUM.
type TypeName struct {
	Name     string
	Args     []string
	Unsigned bool
	At       diag.Span
}

// ColumnDef is a column definition in CREATE TABLE or ALTER TABLE.
type ColumnDef struct {
	Name          Ident
	Type          TypeName
	NotNull       bool
	AutoIncrement bool
	PrimaryKey    bool
	Default       Expr
	// Generated is set for columns computed from an expression.
	Generated bool
	At        diag.Span
}

// HasDefault reports whether inserts may omit the column.
func (d *ColumnDef) HasDefault() bool {
	return d.Default != nil || d.AutoIncrement || d.Generated
}

// CreateTable is a CREATE TABLE statement. Like is set for
// CREATE TABLE t LIKE other.
type CreateTable struct {
	Name        Ident
	IfNotExists bool
	Columns     []ColumnDef
	PrimaryKey  []Ident
	Like        *Ident
	At          diag.Span
}

// DropTable is a DROP TABLE statement.
type DropTable struct {
	Names    []Ident
	IfExists bool
	At       diag.Span
}

type AlterAction int

const (
	AddColumn AlterAction = iota
	ModifyColumn
	ChangeColumn
	DropColumn
	RenameColumn
	SetColumnDefault
	DropColumnDefault
	AddPrimaryKey
	DropPrimaryKey
	RenameTable
	// IgnoredAlter covers index, constraint and table option changes, which
	// do not affect typing.
	IgnoredAlter
)

// AlterSpec is one comma separated action of ALTER TABLE. Column is the
// new definition for ADD, MODIFY and CHANGE. Target names the existing
// column for CHANGE, DROP, RENAME COLUMN and ALTER COLUMN. After names the
// column a new or moved column is placed after.
type AlterSpec struct {
	Action   AlterAction
	Column   ColumnDef
	Target   Ident
	NewName  Ident
	Columns  []Ident
	IfExists bool
	First    bool
	After    *Ident
	At       diag.Span
}

// AlterTable is an ALTER TABLE statement.
type AlterTable struct {
	Name  Ident
	Specs []AlterSpec
	At    diag.Span
}

// Ignored is a statement that is accepted in schema files but has no effect
// on the catalog, such as SET, LOCK TABLES or CREATE INDEX.
type Ignored struct {
	Keyword string
	At      diag.Span
}

func (s *Select) Span() diag.Span      { return s.At }
func (s *Insert) Span() diag.Span      { return s.At }
func (s *Update) Span() diag.Span      { return s.At }
func (s *Delete) Span() diag.Span      { return s.At }
func (s *CreateTable) Span() diag.Span { return s.At }
func (s *DropTable) Span() diag.Span   { return s.At }
func (s *AlterTable) Span() diag.Span  { return s.At }
func (s *Ignored) Span() diag.Span     { return s.At }

func (*Select) stmtNode()      {}
func (*Insert) stmtNode()      {}
func (*Update) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*CreateTable) stmtNode() {}
func (*DropTable) stmtNode()   {}
func (*AlterTable) stmtNode()  {}
func (*Ignored) stmtNode()     {}
