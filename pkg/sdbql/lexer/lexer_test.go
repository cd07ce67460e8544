package lexer

import "testing"

func TestTokenizeBasicQuery(t *testing.T) {
	toks, err := Tokenize(`FOR u IN users FILTER u.age >= 18 RETURN u.name`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"FOR", "u", "IN", "users", "FILTER", "u", ".", "age", ">=", "18", "RETURN", "u", ".", "name"}
	if len(toks)-1 != len(want) { // -1 for trailing EOF
		t.Fatalf("got %d tokens, want %d: %+v", len(toks)-1, len(want), toks)
	}
	for i, w := range want {
		if toks[i].Value != w {
			t.Errorf("token %d: got %q, want %q", i, toks[i].Value, w)
		}
	}
	if toks[len(toks)-1].Kind != KindEOF {
		t.Fatalf("expected trailing EOF token")
	}
}

func TestTokenizeBindVars(t *testing.T) {
	toks, err := Tokenize(`FOR u IN @@coll FILTER u.id == @id RETURN u`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var bindVars []string
	for _, tok := range toks {
		if tok.Kind == KindBindVar {
			bindVars = append(bindVars, tok.Value)
		}
	}
	if len(bindVars) != 2 || bindVars[0] != "@@coll" || bindVars[1] != "@id" {
		t.Fatalf("unexpected bind vars: %v", bindVars)
	}
}

func TestTokenizeSkipsCommentsAndWhitespace(t *testing.T) {
	toks, err := Tokenize("// comment\nRETURN 1 // trailing")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(toks) != 3 { // RETURN, 1, EOF
		t.Fatalf("got %d tokens, want 3: %+v", len(toks), toks)
	}
}

func TestTokenizeBacktickIdent(t *testing.T) {
	toks, err := Tokenize("FOR `order` IN orders RETURN `order`.`total`")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []string{"FOR", "order", "IN", "orders", "RETURN", "order", ".", "total"}
	if len(toks)-1 != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks)-1, len(want), toks)
	}
	for i, w := range want {
		if toks[i].Value != w {
			t.Errorf("token %d: got %q, want %q", i, toks[i].Value, w)
		}
	}
	if toks[1].Kind != KindIdent {
		t.Errorf("backtick-quoted identifier should lex as KindIdent, got %v", toks[1].Kind)
	}
}

func TestTokenizePipeAndFuzzyOperators(t *testing.T) {
	toks, err := Tokenize(`FOR u IN users FILTER u.name ~= "Smith" RETURN u.name |> UPPER()`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var puncts []string
	for _, tok := range toks {
		if tok.Kind == KindPunct && (tok.Value == "~=" || tok.Value == "|>") {
			puncts = append(puncts, tok.Value)
		}
	}
	if len(puncts) != 2 || puncts[0] != "~=" || puncts[1] != "|>" {
		t.Fatalf("expected [~= |>], got %v", puncts)
	}
}

func TestTokenizeTemplateString(t *testing.T) {
	toks, err := Tokenize(`RETURN $"hello ${name}!"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if toks[1].Kind != KindTemplateString {
		t.Fatalf("expected KindTemplateString, got %v (%q)", toks[1].Kind, toks[1].Value)
	}
	if toks[1].Value != `$"hello ${name}!"` {
		t.Fatalf("unexpected template string token value: %q", toks[1].Value)
	}
}
