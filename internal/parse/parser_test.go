// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package parse_test

import (
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqltype/internal/diag"
	"github.com/canonical/sqltype/internal/parse"
)

// Hook up gocheck into the "go test" runner.
func TestParse(t *testing.T) { TestingT(t) }

type ParserSuite struct{}

var _ = Suite(&ParserSuite{})

var tests = []struct {
	summary        string
	dialect        parse.Dialect
	input          string
	expectedParsed string
}{{
	"simple select",
	parse.MariaDB,
	"SELECT id, name FROM t1 WHERE id = ?",
	"SELECT id, name FROM t1 WHERE (id = ?)",
}, {
	"joins, grouping and the offset form of limit",
	parse.MariaDB,
	"select a.x AS y, count(*) from t1 a left join t2 b on a.id = b.id group by a.x having count(*) > 1 order by y desc limit ?, ?",
	"SELECT a.x AS y, COUNT(*) FROM (t1 AS a LEFT JOIN t2 AS b ON (a.id = b.id)) GROUP BY a.x HAVING (COUNT(*) > 1) ORDER BY y DESC LIMIT ? OFFSET ?",
}, {
	"arithmetic precedence",
	parse.MariaDB,
	"SELECT 1 + 2 * 3 - 4",
	"SELECT ((1 + (2 * 3)) - 4)",
}, {
	"logical precedence",
	parse.MariaDB,
	"SELECT * FROM t WHERE a = 1 OR b = 2 AND NOT c",
	"SELECT * FROM t WHERE ((a = 1) OR ((b = 2) AND (NOT c)))",
}, {
	"negative literals are folded",
	parse.MariaDB,
	"SELECT -5, - x",
	"SELECT -5, (-x)",
}, {
	"predicates",
	parse.MariaDB,
	"SELECT * FROM t WHERE x NOT IN (1, 2) AND y BETWEEN ? AND ? AND z IS NOT NULL AND w NOT LIKE 'a%'",
	"SELECT * FROM t WHERE ((((x NOT IN (1, 2)) AND (y BETWEEN ? AND ?)) AND (z IS NOT NULL)) AND (w NOT LIKE 'a%'))",
}, {
	"insert values with on duplicate key update",
	parse.MariaDB,
	"INSERT INTO t1 (a, b) VALUES (?, ?), (1, DEFAULT) ON DUPLICATE KEY UPDATE b = VALUES(b)",
	"INSERT INTO t1 (a, b) VALUES (?, ?), (1, DEFAULT) ON DUPLICATE KEY UPDATE b = VALUES(b)",
}, {
	"replace with set",
	parse.MariaDB,
	"REPLACE INTO t SET a = ?",
	"REPLACE INTO t SET a = ?",
}, {
	"insert select",
	parse.MariaDB,
	"INSERT IGNORE INTO t (a) SELECT b FROM u",
	"INSERT IGNORE INTO t (a) SELECT b FROM u",
}, {
	"update",
	parse.MariaDB,
	"UPDATE t SET a = a + 1 WHERE id = ? LIMIT 1",
	"UPDATE t SET a = (a + 1) WHERE (id = ?) LIMIT 1",
}, {
	"delete with list placeholder and returning",
	parse.MariaDB,
	"DELETE FROM t WHERE id IN (_LIST_) RETURNING id",
	"DELETE FROM t WHERE (id IN (_LIST_)) RETURNING id",
}, {
	"case and cast",
	parse.MariaDB,
	"SELECT CASE WHEN a THEN 'x' ELSE 'y' END, CAST(b AS UNSIGNED) FROM t",
	"SELECT CASE WHEN a THEN 'x' ELSE 'y' END, CAST(b AS bigint unsigned) FROM t",
}, {
	"subqueries",
	parse.MariaDB,
	"SELECT (SELECT max(id) FROM t2) AS m FROM t1 WHERE EXISTS (SELECT 1 FROM t3)",
	"SELECT (SELECT MAX(id) FROM t2) AS m FROM t1 WHERE EXISTS (SELECT 1 FROM t3)",
}, {
	"comments and quoted identifiers",
	parse.MariaDB,
	"SELECT `select` -- trailing\nFROM `t` # hash\n/* block */ WHERE 1",
	"SELECT select FROM t WHERE 1",
}, {
	"star of a table",
	parse.MariaDB,
	"SELECT t.* FROM t",
	"SELECT t.* FROM t",
}, {
	"doubled quote escape",
	parse.MariaDB,
	"SELECT 'it''s'",
	"SELECT 'it's'",
}, {
	"numbered placeholders and concatenation",
	parse.PostgreSQL,
	`SELECT "id" FROM t WHERE a = $2 AND b = $1 OR c || 'x' = $2`,
	"SELECT id FROM t WHERE (((a = $2) AND (b = $1)) OR ((c || 'x') = $2))",
}, {
	"using and cross join",
	parse.MariaDB,
	"SELECT a FROM t1 JOIN t2 USING (id) CROSS JOIN t3",
	"SELECT a FROM ((t1 INNER JOIN t2 USING (id)) CROSS JOIN t3)",
}, {
	"derived table",
	parse.MariaDB,
	"SELECT x FROM (SELECT 1 AS x) AS d",
	"SELECT x FROM (SELECT 1 AS x) AS d",
}, {
	"interval arithmetic",
	parse.MariaDB,
	"SELECT now() + INTERVAL 1 DAY",
	"SELECT (NOW() + INTERVAL 1 DAY)",
}, {
	"operator spellings",
	parse.MariaDB,
	"SELECT a <=> NULL, b != 1, c DIV 2, d MOD 3, e % 4",
	"SELECT (a <=> NULL), (b <> 1), (c DIV 2), (d % 3), (e % 4)",
}, {
	"aggregate modifiers",
	parse.MariaDB,
	"SELECT COUNT(DISTINCT a), GROUP_CONCAT(b ORDER BY b SEPARATOR ',') FROM t",
	"SELECT COUNT(DISTINCT a), GROUP_CONCAT(b ORDER BY b SEPARATOR ',') FROM t",
}, {
	"integers beyond 64 bits become floats",
	parse.MariaDB,
	"SELECT 18446744073709551616",
	"SELECT 1.8446744073709552e+19",
}, {
	"hex literals",
	parse.MariaDB,
	"SELECT x'4142', 0x43",
	"SELECT x'4142', x'43'",
}, {
	"trailing semicolon",
	parse.MariaDB,
	"SELECT 1;",
	"SELECT 1",
}}

func (s *ParserSuite) TestRound(c *C) {
	for i, test := range tests {
		parser := parse.NewParser(test.dialect)
		stmt, err := parser.Parse(test.input)
		if err != nil {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nerr: %s\n", i, test.summary, test.input, test.expectedParsed, err)
		} else if parse.Format(stmt) != test.expectedParsed {
			c.Errorf("test %d failed (Parse):\nsummary: %s\ninput: %s\nexpected: %s\nactual:   %s\n", i, test.summary, test.input, test.expectedParsed, parse.Format(stmt))
		}
	}
}

var errorTests = []struct {
	summary string
	dialect parse.Dialect
	input   string
	kind    diag.Kind
	err     string
}{{
	"unterminated string",
	parse.MariaDB,
	"SELECT 'abc",
	diag.UnterminatedLiteral,
	"column 8: missing closing quote in string literal",
}, {
	"unterminated comment",
	parse.MariaDB,
	"SELECT 1 /* x",
	diag.UnterminatedLiteral,
	"column 10: missing closing \\*/ in comment",
}, {
	"reserved word as table",
	parse.MariaDB,
	"SELECT a FROM WHERE",
	diag.UnexpectedToken,
	`column 15: expected table name but found "WHERE"`,
}, {
	"compound select",
	parse.MariaDB,
	"SELECT 1 UNION SELECT 2",
	diag.UnsupportedConstruct,
	"column 10: compound SELECT is not supported",
}, {
	"numbered placeholder in mariadb",
	parse.MariaDB,
	"SELECT ? FROM t WHERE a = $1",
	diag.UnsupportedConstruct,
	`column 27: numbered placeholder \$1 is not supported`,
}, {
	"question mark in postgres",
	parse.PostgreSQL,
	"SELECT a FROM t WHERE b = ?",
	diag.UnsupportedConstruct,
	`column 27: placeholder \? is not supported`,
}, {
	"error on a later line",
	parse.MariaDB,
	"SELECT a,\nb FROM",
	diag.UnexpectedToken,
	"line 2, column 7: expected table name but found end of input",
}, {
	"trailing garbage",
	parse.MariaDB,
	"SELECT a b c",
	diag.UnexpectedToken,
	`column 12: expected end of statement but found "c"`,
}, {
	"empty input",
	parse.MariaDB,
	"  ",
	diag.UnexpectedToken,
	"column 3: expected a statement but found end of input",
}, {
	"ddl is not a query",
	parse.MariaDB,
	"CREATE TABLE t (a int)",
	diag.UnexpectedToken,
	`column 1: expected SELECT, INSERT, REPLACE, UPDATE or DELETE but found "CREATE"`,
}}

func (s *ParserSuite) TestErrors(c *C) {
	for i, test := range errorTests {
		parser := parse.NewParser(test.dialect)
		stmt, err := parser.Parse(test.input)
		c.Assert(stmt, IsNil, Commentf("test %d: %s", i, test.summary))
		c.Assert(err, ErrorMatches, test.err, Commentf("test %d: %s", i, test.summary))
		c.Check(err.(*diag.Error).Kind, Equals, test.kind, Commentf("test %d: %s", i, test.summary))
	}
}

func (s *ParserSuite) TestPlaceholderIndexes(c *C) {
	parser := parse.NewParser(parse.MariaDB)
	stmt, err := parser.Parse("SELECT ?, ? FROM t WHERE a IN (_LIST_)")
	c.Assert(err, IsNil)
	sel := stmt.(*parse.Select)
	c.Check(sel.Items[0].Expr.(*parse.Placeholder).Index, Equals, 0)
	c.Check(sel.Items[1].Expr.(*parse.Placeholder).Index, Equals, 1)
	in := sel.Where.(*parse.InList)
	ph := in.List[0].(*parse.Placeholder)
	c.Check(ph.Index, Equals, 2)
	c.Check(ph.List, Equals, true)

	// Indexes restart for every statement.
	stmt, err = parser.Parse("SELECT ?")
	c.Assert(err, IsNil)
	c.Check(stmt.(*parse.Select).Items[0].Expr.(*parse.Placeholder).Index, Equals, 0)
}

func (s *ParserSuite) TestSpans(c *C) {
	parser := parse.NewParser(parse.MariaDB)
	stmt, err := parser.Parse("SELECT a + 1 FROM t")
	c.Assert(err, IsNil)
	sel := stmt.(*parse.Select)
	c.Check(sel.Items[0].Expr.Span(), Equals, diag.Span{Start: 7, End: 12})
	c.Check(sel.From[0].Span(), Equals, diag.Span{Start: 18, End: 19})
	c.Check(sel.Span(), Equals, diag.Span{Start: 0, End: 19})
}

var scriptTests = []struct {
	summary  string
	input    string
	expected []string
}{{
	"create table with options",
	"CREATE TABLE t1 (id INT UNSIGNED NOT NULL AUTO_INCREMENT, name VARCHAR(100) DEFAULT 'x', PRIMARY KEY (id)) ENGINE=InnoDB;",
	[]string{"CREATE TABLE t1 (id int unsigned NOT NULL AUTO_INCREMENT, name varchar(100) DEFAULT 'x', PRIMARY KEY (id))"},
}, {
	"alter table",
	"ALTER TABLE t1 ADD COLUMN c INT AFTER id, MODIFY name TEXT NOT NULL, DROP COLUMN d, ADD INDEX idx (c)",
	[]string{"ALTER TABLE t1 ADD COLUMN c int AFTER id, MODIFY COLUMN name text NOT NULL, DROP COLUMN d, <ignored>"},
}, {
	"drop table",
	"DROP TABLE IF EXISTS a, b",
	[]string{"DROP TABLE IF EXISTS a, b"},
}, {
	"dump preamble",
	"/*!40101 SET NAMES utf8 */;\nSET FOREIGN_KEY_CHECKS=0;\nLOCK TABLES `t` WRITE;\nCREATE TABLE `t` (`a` enum('x','y') NOT NULL);\nUNLOCK TABLES;",
	[]string{"<ignored SET>", "<ignored LOCK>", "CREATE TABLE t (a enum(x,y) NOT NULL)", "<ignored UNLOCK>"},
}, {
	"keys and constraints are skipped",
	"CREATE TABLE t (a INT NOT NULL, b INT, UNIQUE KEY ab (a, b), KEY b (b), CONSTRAINT fk FOREIGN KEY (b) REFERENCES u (id) ON DELETE CASCADE)",
	[]string{"CREATE TABLE t (a int NOT NULL, b int)"},
}, {
	"generated and defaulted columns",
	"CREATE TABLE t (a INT DEFAULT -1, b DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP, c INT AS (a + 1) VIRTUAL)",
	[]string{"CREATE TABLE t (a int DEFAULT -1, b datetime NOT NULL DEFAULT CURRENT_TIMESTAMP(), c int GENERATED)"},
}, {
	"create table like",
	"CREATE TABLE t2 LIKE t1",
	[]string{"CREATE TABLE t2 LIKE t1"},
}, {
	"rename and defaults",
	"ALTER TABLE t RENAME COLUMN a TO b, ALTER COLUMN b SET DEFAULT 3, CHANGE c d BIGINT FIRST, RENAME TO u",
	[]string{"ALTER TABLE t RENAME COLUMN a TO b, ALTER COLUMN b SET DEFAULT 3, CHANGE COLUMN c d bigint FIRST, RENAME TO u"},
}, {
	"primary key changes",
	"ALTER TABLE t DROP PRIMARY KEY, ADD PRIMARY KEY (a, b)",
	[]string{"ALTER TABLE t DROP PRIMARY KEY, ADD PRIMARY KEY (a, b)"},
}}

func (s *ParserSuite) TestScript(c *C) {
	for i, test := range scriptTests {
		parser := parse.NewParser(parse.MariaDB)
		stmts, err := parser.ParseScript(test.input)
		c.Assert(err, IsNil, Commentf("test %d: %s", i, test.summary))
		var got []string
		for _, stmt := range stmts {
			got = append(got, parse.Format(stmt))
		}
		c.Check(got, DeepEquals, test.expected, Commentf("test %d: %s", i, test.summary))
	}
}

func (s *ParserSuite) TestPostgresScript(c *C) {
	parser := parse.NewParser(parse.PostgreSQL)
	stmts, err := parser.ParseScript(`CREATE TABLE "t" (id bigserial PRIMARY KEY, at timestamp with time zone, name character varying(10) NOT NULL)`)
	c.Assert(err, IsNil)
	c.Assert(stmts, HasLen, 1)
	c.Check(parse.Format(stmts[0]), Equals, "CREATE TABLE t (id bigserial NOT NULL AUTO_INCREMENT PRIMARY KEY, at timestamptz, name varchar(10) NOT NULL)")
}

func (s *ParserSuite) TestScriptErrors(c *C) {
	parser := parse.NewParser(parse.MariaDB)
	_, err := parser.ParseScript("CREATE TABLE x (a int")
	c.Assert(err, ErrorMatches, `column 22: expected "\)" but found end of input`)
	c.Check(err.(*diag.Error).Kind, Equals, diag.MalformedDDL)

	_, err = parser.ParseScript("CREATE TABLE x (a int);\nFROB t;")
	c.Assert(err, ErrorMatches, `line 2, column 1: unsupported schema statement starting with "FROB"`)
	c.Check(err.(*diag.Error).Kind, Equals, diag.MalformedDDL)
}

func FuzzParser(f *testing.F) {
	// Add some values to the corpus
	for _, test := range tests {
		f.Add(test.input)
	}
	f.Fuzz(func(t *testing.T, s string) {
		// Loop forever or until it crashes
		parser := parse.NewParser(parse.MariaDB)
		parser.Parse(s)
	})
}
