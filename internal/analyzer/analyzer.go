// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package analyzer checks the SQL of a Go package at build time.

Every call to Schema.Prepare or Schema.MustPrepare whose query is a string
constant is checked against the schema file. Errors in the schema, the query
syntax or its types are reported at the position of the offending text inside
the string literal.

Queries run with DB.Query or TX.Query have their arguments checked against the
parameters of the statement. The statement must be given directly as a
MustPrepare call or through a variable that is only ever assigned from one.
The argument count is always checked; argument types are checked when they
are known statically.

The schema is the file named by the -schema flag or, when it is empty, the
first sqltype-schema.sql found walking up from the directory of the package.
*/
package analyzer

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"

	"github.com/canonical/sqltype"
)

const sqltypePath = "github.com/canonical/sqltype"

var schemaPath string

// Analyzer reports SQL that fails to check against the schema.
var Analyzer = &analysis.Analyzer{
	Name:     "sqltype",
	Doc:      "check SQL queries and their arguments against the database schema",
	URL:      "https://pkg.go.dev/github.com/canonical/sqltype/internal/analyzer",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func init() {
	Analyzer.Flags.StringVar(&schemaPath, "schema", "", "path of the schema file (default: nearest "+sqltype.SchemaFileName+")")
}

// schemas caches loaded schemas by path. Packages are analysed
// concurrently and usually share one schema.
var schemas = struct {
	sync.Mutex
	m map[string]*loadedSchema
}{m: map[string]*loadedSchema{}}

type loadedSchema struct {
	once   sync.Once
	schema *sqltype.Schema
	err    error
}

func loadSchema(path string) (*sqltype.Schema, error) {
	schemas.Lock()
	ls, ok := schemas.m[path]
	if !ok {
		ls = &loadedSchema{}
		schemas.m[path] = ls
	}
	schemas.Unlock()

	ls.once.Do(func() {
		ls.schema, ls.err = sqltype.LoadSchema(path, sqltype.Options{})
	})
	return ls.schema, ls.err
}

// prepared is a statement prepared from a constant query. stmt is nil when
// the query did not check.
type prepared struct {
	stmt *sqltype.Statement
}

// binding records what is known of a variable holding a statement.
// Variables assigned from anything but a single MustPrepare call are
// poisoned and not checked.
type binding struct {
	stmt     *sqltype.Statement
	poisoned bool
}

type pass struct {
	*analysis.Pass
	schema    *sqltype.Schema
	schemaErr error
	loaded    bool
	calls     map[*ast.CallExpr]prepared
	vars      map[types.Object]*binding
}

func run(ap *analysis.Pass) (any, error) {
	insp := ap.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	p := &pass{
		Pass:  ap,
		calls: map[*ast.CallExpr]prepared{},
		vars:  map[types.Object]*binding{},
	}

	// Check every prepared query first so that statements bound to
	// variables are known before the queries that use them.
	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if isMethod(p.TypesInfo, call, "Schema", "Prepare", "MustPrepare") {
			p.prepare(call)
		}
	})
	if len(p.calls) == 0 {
		return nil, nil
	}

	insp.Preorder([]ast.Node{(*ast.AssignStmt)(nil), (*ast.ValueSpec)(nil)}, func(n ast.Node) {
		switch n := n.(type) {
		case *ast.AssignStmt:
			p.bindAll(n.Lhs, n.Rhs)
		case *ast.ValueSpec:
			lhs := make([]ast.Expr, len(n.Names))
			for i, name := range n.Names {
				lhs[i] = name
			}
			p.bindAll(lhs, n.Values)
		}
	})

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		if isMethod(p.TypesInfo, call, "DB", "Query") || isMethod(p.TypesInfo, call, "TX", "Query") {
			p.checkQuery(call)
		}
	})
	return nil, nil
}

// isMethod reports whether call calls one of the named methods of the
// named sqltype type.
func isMethod(info *types.Info, call *ast.CallExpr, recv string, names ...string) bool {
	fn, ok := typeutil.Callee(info, call).(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != sqltypePath {
		return false
	}
	sig := fn.Type().(*types.Signature)
	if sig.Recv() == nil {
		return false
	}
	t := sig.Recv().Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Name() != recv {
		return false
	}
	for _, name := range names {
		if fn.Name() == name {
			return true
		}
	}
	return false
}

// lookupSchema loads the schema of the package on first use.
func (p *pass) lookupSchema() (*sqltype.Schema, error) {
	if p.loaded {
		return p.schema, p.schemaErr
	}
	p.loaded = true
	path := schemaPath
	if path == "" && len(p.Files) > 0 {
		dir := filepath.Dir(p.Fset.File(p.Files[0].Pos()).Name())
		path, p.schemaErr = sqltype.FindSchemaFile(dir)
	}
	if p.schemaErr == nil {
		p.schema, p.schemaErr = loadSchema(path)
	}
	return p.schema, p.schemaErr
}

func (p *pass) prepare(call *ast.CallExpr) {
	if len(call.Args) != 1 {
		return
	}
	arg := call.Args[0]
	tv, ok := p.TypesInfo.Types[arg]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		return
	}
	query := constant.StringVal(tv.Value)

	s, err := p.lookupSchema()
	if err != nil {
		p.calls[call] = prepared{}
		// One report per package is enough.
		if len(p.calls) == 1 {
			p.Reportf(call.Pos(), "%s", err)
		}
		return
	}
	stmt, err := s.Prepare(query)
	if err != nil {
		p.reportError(literalPos(arg, query, err), err)
	}
	p.calls[call] = prepared{stmt: stmt}
}

func (p *pass) reportError(pos token.Pos, err error) {
	var de *sqltype.Error
	if errors.As(err, &de) && de.Kind != sqltype.Internal {
		p.Reportf(pos, "%s: %s", de.Kind, de.Msg)
		return
	}
	p.Reportf(pos, "%s", err)
}

// literalPos returns the position of the error inside the query literal
// when the literal text maps byte for byte onto the query, and the start of
// the expression otherwise.
func literalPos(arg ast.Expr, query string, err error) token.Pos {
	var de *sqltype.Error
	if !errors.As(err, &de) {
		return arg.Pos()
	}
	lit, ok := astutil.Unparen(arg).(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING || len(lit.Value) < 2 {
		return arg.Pos()
	}
	if inner := lit.Value[1 : len(lit.Value)-1]; inner != query {
		return arg.Pos()
	}
	if de.Span.Start < 0 || de.Span.Start > len(query) {
		return arg.Pos()
	}
	return lit.Pos() + 1 + token.Pos(de.Span.Start)
}

func (p *pass) bindAll(lhs, rhs []ast.Expr) {
	if len(lhs) != len(rhs) {
		// Multi value assignments never come from MustPrepare.
		for _, e := range lhs {
			p.bind(e, nil)
		}
		return
	}
	for i, e := range lhs {
		p.bind(e, rhs[i])
	}
}

func (p *pass) bind(lhs, rhs ast.Expr) {
	id, ok := astutil.Unparen(lhs).(*ast.Ident)
	if !ok || id.Name == "_" {
		return
	}
	obj := p.TypesInfo.ObjectOf(id)
	if obj == nil {
		return
	}
	var stmt *sqltype.Statement
	poisoned := true
	if call, ok := astutil.Unparen(rhs).(*ast.CallExpr); ok && rhs != nil {
		if pr, ok := p.calls[call]; ok && pr.stmt != nil && isMethod(p.TypesInfo, call, "Schema", "MustPrepare") {
			stmt, poisoned = pr.stmt, false
		}
	}
	b, ok := p.vars[obj]
	switch {
	case !ok:
		p.vars[obj] = &binding{stmt: stmt, poisoned: poisoned}
	case poisoned || b.stmt != stmt:
		b.poisoned = true
	}
}

// statement returns the statement passed as e, if it is known.
func (p *pass) statement(e ast.Expr) *sqltype.Statement {
	switch e := astutil.Unparen(e).(type) {
	case *ast.CallExpr:
		if pr, ok := p.calls[e]; ok && isMethod(p.TypesInfo, e, "Schema", "MustPrepare") {
			return pr.stmt
		}
	case *ast.Ident:
		if b, ok := p.vars[p.TypesInfo.ObjectOf(e)]; ok && !b.poisoned {
			return b.stmt
		}
	case *ast.SelectorExpr:
		if b, ok := p.vars[p.TypesInfo.ObjectOf(e.Sel)]; ok && !b.poisoned {
			return b.stmt
		}
	}
	return nil
}

func (p *pass) checkQuery(call *ast.CallExpr) {
	if len(call.Args) < 2 || call.Ellipsis.IsValid() {
		return
	}
	stmt := p.statement(call.Args[1])
	if stmt == nil {
		return
	}
	params := stmt.Params()
	args := call.Args[2:]
	if len(args) != len(params) {
		p.Reportf(call.Lparen, "%s: expected %d arguments but got %d", sqltype.ArgumentMismatch, len(params), len(args))
		return
	}
	for i, arg := range args {
		tv, ok := p.TypesInfo.Types[arg]
		if !ok {
			continue
		}
		if problem := argumentProblem(tv, params[i]); problem != "" {
			p.Reportf(arg.Pos(), "%s: argument %d: %s", sqltype.ArgumentMismatch, i+1, problem)
		}
	}
}

// argumentProblem describes why a Go expression of the given type and
// value cannot be passed for param. It returns "" when the argument may be
// valid; values not known until run time are checked then.
func argumentProblem(tv types.TypeAndValue, param sqltype.Param) string {
	if tv.IsNil() {
		if param.List {
			return "cannot pass nil for _LIST_"
		}
		if !param.Nullable {
			return "cannot pass nil for non-nullable " + param.Type.String()
		}
		return ""
	}
	t := tv.Type
	value := tv.Value
	if param.List {
		s, ok := t.Underlying().(*types.Slice)
		if !ok || isByte(s.Elem()) {
			return "need slice for _LIST_, got " + t.String()
		}
		t, value = s.Elem(), nil
	}
	for {
		ptr, ok := t.Underlying().(*types.Pointer)
		if !ok {
			break
		}
		t = ptr.Elem()
	}
	if types.IsInterface(t) || hasValueMethod(t) {
		return ""
	}
	if isTime(t) {
		if !param.Type.IsTemporal() {
			return "cannot use time.Time for " + param.Type.String()
		}
		return ""
	}
	mismatch := "cannot use " + t.String() + " for " + param.Type.String()
	if s, ok := t.Underlying().(*types.Slice); ok && isByte(s.Elem()) {
		switch param.Type.Kind {
		case sqltype.BytesKind, sqltype.TextKind, sqltype.JSONKind:
			return ""
		}
		return mismatch
	}
	basic, ok := t.Underlying().(*types.Basic)
	if !ok {
		return ""
	}
	info := basic.Info()
	switch kind := param.Type.Kind; {
	case info&types.IsBoolean != 0:
		if kind != sqltype.BoolKind {
			return mismatch
		}
	case info&types.IsInteger != 0:
		switch kind {
		case sqltype.IntKind:
			return intProblem(value, param.Type)
		case sqltype.BoolKind, sqltype.FloatKind:
		default:
			return mismatch
		}
	case info&types.IsFloat != 0:
		if kind != sqltype.FloatKind {
			return mismatch
		}
	case info&types.IsString != 0:
		switch kind {
		case sqltype.TextKind:
			if value != nil && param.Type.MaxLen > 0 {
				s := constant.StringVal(value)
				if n := len([]rune(s)); n > int(param.Type.MaxLen) {
					return "string of length " + strconv.Itoa(n) + " is longer than " + param.Type.String()
				}
			}
		case sqltype.EnumKind:
			if value != nil && !member(constant.StringVal(value), param.Type.Values) {
				return strconv.Quote(constant.StringVal(value)) + " is not a valid " + param.Type.String()
			}
		case sqltype.SetKind, sqltype.JSONKind, sqltype.BytesKind,
			sqltype.DateKind, sqltype.TimeKind, sqltype.DateTimeKind, sqltype.TimestampKind:
		default:
			return mismatch
		}
	}
	return ""
}

func intProblem(value constant.Value, t sqltype.Type) string {
	if value == nil || value.Kind() != constant.Int {
		return ""
	}
	neg := constant.Sign(value) < 0
	abs := value
	if neg {
		abs = constant.UnaryOp(token.SUB, value, 0)
	}
	mag, exact := constant.Uint64Val(abs)
	if !exact || !t.Fits(neg, mag) {
		return "value " + value.ExactString() + " out of range for " + t.String()
	}
	return ""
}

func member(s string, values []string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func isByte(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Kind() == types.Uint8
}

func isTime(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "time" && obj.Name() == "Time"
}

// hasValueMethod reports whether t converts itself to a driver value, in
// which case its conversion is not known statically.
func hasValueMethod(t types.Type) bool {
	ms := types.NewMethodSet(types.NewPointer(t))
	for i := 0; i < ms.Len(); i++ {
		if ms.At(i).Obj().Name() == "Value" {
			return true
		}
	}
	return false
}
