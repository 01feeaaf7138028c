package lexer

import (
	"testing"

	"barlang/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize_SimpleAssignment(t *testing.T) {
	toks, diags := Tokenize("x = 1 + 2 * 3")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	got := kinds(toks)
	want := []token.Kind{token.IDENT, token.DEFINE, token.INT, token.OPERATOR, token.INT, token.OPERATOR, token.INT, token.EOF}
	assertKinds(t, got, want)
}

func TestTokenize_IndentBalancesAndEndsAtZero(t *testing.T) {
	src := "if close\n    plot(1, \"x\")\ny = 2\n"
	toks, _ := Tokenize(src)

	begins, ends := 0, 0
	for _, tk := range toks {
		switch tk.Kind {
		case token.BEGIN:
			begins++
		case token.END:
			ends++
		}
	}
	if begins != ends {
		t.Fatalf("unbalanced BEGIN/END: begins=%d ends=%d", begins, ends)
	}
	if toks[len(toks)-1].Kind != token.EOF {
		t.Fatalf("expected last token to be EOF, got %v", toks[len(toks)-1].Kind)
	}
}

func TestTokenize_DedentEmitsLendThenEnd(t *testing.T) {
	src := "if close\n    plot(1, \"x\")\nz = 2\n"
	toks, _ := Tokenize(src)
	got := kinds(toks)

	// Expect: KEYWORD(if) ... BEGIN ... LEND immediately followed by END,
	// and that END appears before the dedented statement's IDENT.
	var sawBegin, sawEnd bool
	for _, k := range got {
		if k == token.BEGIN {
			sawBegin = true
		}
		if k == token.END {
			sawEnd = true
		}
	}
	if !sawBegin || !sawEnd {
		t.Fatalf("expected BEGIN and END in token stream, got %v", got)
	}
	for i, tk := range toks {
		if tk.Kind == token.END {
			if i == 0 || toks[i-1].Kind != token.LEND {
				t.Fatalf("expected LEND immediately before END, got %v", got)
			}
			break
		}
		if tk.Kind == token.IDENT && tk.Lexeme == "z" {
			t.Fatalf("expected END before the dedented statement, got %v", got)
		}
	}
}

func TestTokenize_ParenSuppressesLayout(t *testing.T) {
	src := "y = f(1,\n      2,\n      3)\n"
	toks, diags := Tokenize(src)
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	for _, tk := range toks {
		if tk.Kind == token.BEGIN || tk.Kind == token.END {
			t.Fatalf("layout tokens should be suppressed inside parens, got %v", kinds(toks))
		}
	}
}

func TestTokenize_DottedIdentifier(t *testing.T) {
	toks, _ := Tokenize("ta.sma(close, 14)")
	if toks[0].Kind != token.IDENT || toks[0].Lexeme != "ta.sma" {
		t.Fatalf("expected dotted identifier 'ta.sma', got %+v", toks[0])
	}
}

func TestTokenize_ColorLiteral(t *testing.T) {
	toks, diags := Tokenize("c = #FF00FF")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Items())
	}
	if toks[2].Kind != token.COLOR || toks[2].Lexeme != "#FF00FF" {
		t.Fatalf("expected color literal, got %+v", toks[2])
	}
}

func TestTokenize_IndentMismatchWarns(t *testing.T) {
	src := "if a\n    x = 1\n  y = 2\n"
	_, diags := Tokenize(src)
	if !diags.HasErrors() && diags.Len() == 0 {
		t.Fatalf("expected at least a warning for mismatched dedent")
	}
	foundWarning := false
	for _, d := range diags.Items() {
		if d.Severity.String() == "warning" {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Fatalf("expected a non-fatal warning, got %v", diags.Items())
	}
}

func assertKinds(t *testing.T, got, want []token.Kind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %v want %v (full got=%v)", i, got[i], want[i], got)
		}
	}
}
