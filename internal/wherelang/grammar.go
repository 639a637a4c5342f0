package wherelang

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// whereLexer tokenizes where expressions. Keywords (and, or, in, null, ...)
// lex as Ident and are matched by value in the grammar.
var whereLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?`},
	{Name: "Operator", Pattern: `!=|<=|>=|=|<|>`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Punct", Pattern: `[()\[\],]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

// orExpr is the grammar root: a disjunction of conjunctions.
type orExpr struct {
	Pos lexer.Position
	And []*andExpr `@@ ( "or" @@ )*`
}

type andExpr struct {
	Terms []*term `@@ ( "and" @@ )*`
}

type term struct {
	Group      *orExpr     `  "(" @@ ")"`
	Comparison *comparison `| @@`
}

type comparison struct {
	Pos    lexer.Position
	Column string `@Ident ( @Dot @Ident )?`
	Op     string `@( Operator | "in" | "nin" | "ne" | "like" | "contains" | "startsWith" | "endsWith" )`
	Value  *value `@@`
}

type value struct {
	Null   bool    `  @"null":Ident`
	True   bool    `| @"true":Ident`
	False  bool    `| @"false":Ident`
	Number *string `| @Number`
	String *string `| @String`
	List   *list   `| @@`
}

// list captures its closing bracket so an empty list still yields a node.
type list struct {
	Items []*value `"[" ( @@ ( "," @@ )* ","? )?`
	Close bool     `@"]"`
}

var parser = participle.MustBuild[orExpr](
	participle.Lexer(whereLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)
