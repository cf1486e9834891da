package parse

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(?:SELECT|FROM|WHERE|AND|INSERT|INTO|VALUES|UPDATE|SET|DELETE|CREATE|TABLE|VIEW|INDEX|ON|AS|INT|VARCHAR|EXPLAIN|BEGIN|COMMIT|ROLLBACK|DISTINCT|ORDER|BY|ASC|DESC|LIMIT)\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Punct", Pattern: `[(),;=*]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var sqlParser = participle.MustBuild[statement](
	participle.Lexer(sqlLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.Map(lowerIdent, "Ident"),
	participle.Map(unquoteString, "String"),
)

// Identifiers are case-insensitive and stored in lower case.
func lowerIdent(tok lexer.Token) (lexer.Token, error) {
	tok.Value = strings.ToLower(tok.Value)
	return tok, nil
}

func unquoteString(tok lexer.Token) (lexer.Token, error) {
	tok.Value = strings.ReplaceAll(tok.Value[1:len(tok.Value)-1], "''", "'")
	return tok, nil
}

//nolint:govet
type statement struct {
	Explain  *selectStmt `(   "EXPLAIN" @@`
	Select   *selectStmt `  | @@`
	Insert   *insertStmt `  | @@`
	Update   *updateStmt `  | @@`
	Delete   *deleteStmt `  | @@`
	Create   *createStmt `  | "CREATE" @@`
	Begin    bool        `  | @"BEGIN"`
	Commit   bool        `  | @"COMMIT"`
	Rollback bool        `  | @"ROLLBACK" ) ";"?`
}

//nolint:govet
type selectStmt struct {
	Distinct bool         `"SELECT" @"DISTINCT"?`
	Star     bool         `( @"*"`
	Fields   []string     `| @Ident ( "," @Ident )* )`
	Tables   []string     `"FROM" @Ident ( "," @Ident )*`
	Where    *predicate   `( "WHERE" @@ )?`
	OrderBy  []*orderItem `( "ORDER" "BY" @@ ( "," @@ )* )?`
	Limit    *string      `( "LIMIT" @Int )?`
}

//nolint:govet
type orderItem struct {
	Field string `@Ident`
	Desc  bool   `( "ASC" | @"DESC" )?`
}

//nolint:govet
type insertStmt struct {
	Table  string      `"INSERT" "INTO" @Ident`
	Fields []string    `"(" @Ident ( "," @Ident )* ")"`
	Values []*constant `"VALUES" "(" @@ ( "," @@ )* ")"`
}

//nolint:govet
type updateStmt struct {
	Table string      `"UPDATE" @Ident`
	Field string      `"SET" @Ident "="`
	Value *expression `@@`
	Where *predicate  `( "WHERE" @@ )?`
}

//nolint:govet
type deleteStmt struct {
	Table string     `"DELETE" "FROM" @Ident`
	Where *predicate `( "WHERE" @@ )?`
}

//nolint:govet
type createStmt struct {
	Table *createTableStmt `  @@`
	View  *createViewStmt  `| @@`
	Index *createIndexStmt `| @@`
}

//nolint:govet
type createTableStmt struct {
	Name   string      `"TABLE" @Ident`
	Fields []*fieldDef `"(" @@ ( "," @@ )* ")"`
}

//nolint:govet
type fieldDef struct {
	Name    string  `@Ident`
	Int     bool    `( @"INT"`
	Varchar *string `| "VARCHAR" "(" @Int ")" )`
}

//nolint:govet
type createViewStmt struct {
	Name  string      `"VIEW" @Ident "AS"`
	Query *selectStmt `@@`
}

//nolint:govet
type createIndexStmt struct {
	Name  string `"INDEX" @Ident`
	Table string `"ON" @Ident`
	Field string `"(" @Ident ")"`
}

//nolint:govet
type predicate struct {
	Terms []*term `@@ ( "AND" @@ )*`
}

//nolint:govet
type term struct {
	LHS *expression `@@ "="`
	RHS *expression `@@`
}

//nolint:govet
type expression struct {
	Constant *constant `  @@`
	Field    *string   `| @Ident`
}

//nolint:govet
type constant struct {
	Int    *string `  @Int`
	String *string `| @String`
}
