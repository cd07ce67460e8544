// Package lexer tokenizes SDBQL source text using a participle simple
// lexer (spec §4.8), then drains it into a flat token slice that the
// hand-written Pratt parser in pkg/sdbql/parser walks with ordinary index
// lookahead rather than a streaming interface. Besides the ordinary
// numbers/strings/identifiers/punctuation, it recognizes backtick-quoted
// identifiers (`` `like this` ``, folded into a plain KindIdent token with
// the backticks stripped), the pipeline operator `|>`, the fuzzy-match
// operator `~=`, and `$"..."` template strings carrying `${expr}`
// substitutions (left for the parser to split into literal/expression
// parts, since that requires re-entering expression parsing).
package lexer

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/cuemby/solidb/pkg/types"
)

// Kind names one token class.
type Kind string

const (
	KindWhitespace     Kind = "Whitespace"
	KindComment        Kind = "Comment"
	KindNumber         Kind = "Number"
	KindString         Kind = "String"
	KindTemplateString Kind = "TemplateString"
	KindBindVar        Kind = "BindVar"
	KindIdent          Kind = "Ident"
	KindPunct          Kind = "Punct"
	KindEOF            Kind = "EOF"

	// kindBacktickIdent is the raw participle rule name for a
	// `backtick-quoted` identifier; Tokenize folds it into KindIdent
	// (with the backticks stripped) since it is the same kind of token
	// to the parser, just spelled differently to escape a keyword or an
	// otherwise-illegal identifier character.
	kindBacktickIdent = "BacktickIdent"
)

// Token is one lexical unit: its class, raw text, and byte offset (used
// in ParseError messages).
type Token struct {
	Kind  Kind
	Value string
	Pos   int
}

var definition = lexer.MustSimple([]lexer.SimpleRule{
	{Name: string(KindWhitespace), Pattern: `\s+`},
	{Name: string(KindComment), Pattern: `//[^\n]*|/\*.*?\*/`},
	{Name: string(KindNumber), Pattern: `\d+\.\d+|\d+`},
	// $"..." template strings must be tried before the plain string rule
	// since both start on a quote-adjacent character and participle's
	// simple lexer picks the first rule (in list order) that matches at
	// the current position, not the longest one.
	{Name: string(KindTemplateString), Pattern: `\$"(\\.|[^"\\])*"`},
	{Name: string(KindString), Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: kindBacktickIdent, Pattern: "`[^`]*`"},
	{Name: string(KindBindVar), Pattern: `@@?[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: string(KindIdent), Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	// `|>` (pipeline) and `~=` (fuzzy match) are listed before the
	// single-character class so they win over a `|` or `~` match at the
	// same position.
	{Name: string(KindPunct), Pattern: `\.\.|<=|>=|==|!=|&&|\|\||\?\.|=>|\|>|~=|[-+*/%(),.\[\]{}:;<>=!?|&@~]`},
})

// Tokenize runs the participle lexer over query and returns its
// significant tokens (whitespace and comments dropped), terminated by a
// KindEOF token.
func Tokenize(query string) ([]Token, error) {
	lx, err := definition.Lex("query", strings.NewReader(query))
	if err != nil {
		return nil, types.NewError(types.ErrParseError, "lex query: %v", err)
	}
	symbols := definition.Symbols()
	names := make(map[rune]string, len(symbols))
	for name, r := range symbols {
		names[r] = name
	}

	var tokens []Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, types.NewError(types.ErrParseError, "lex query: %v", err)
		}
		if tok.EOF() {
			tokens = append(tokens, Token{Kind: KindEOF, Pos: int(tok.Pos.Offset)})
			return tokens, nil
		}
		kind := Kind(names[tok.Type])
		if kind == KindWhitespace || kind == KindComment {
			continue
		}
		value := tok.Value
		if string(kind) == kindBacktickIdent {
			kind = KindIdent
			value = strings.Trim(value, "`")
		}
		tokens = append(tokens, Token{Kind: kind, Value: value, Pos: int(tok.Pos.Offset)})
	}
}
