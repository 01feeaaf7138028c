package lower

import (
	"testing"

	"barlang/internal/lexer"
	"barlang/internal/parser"
)

func compile(t *testing.T, src string) (*Program, bool) {
	t.Helper()
	toks, lexDiags := lexer.Tokenize(src)
	if lexDiags.HasErrors() {
		t.Fatalf("lexer errors: %v", lexDiags.Items())
	}
	script, parseDiags := parser.Parse(toks)
	if parseDiags.HasErrors() {
		t.Fatalf("parse errors: %v", parseDiags.Items())
	}
	prog, diags := Lower(script)
	return prog, diags.HasErrors()
}

func TestLower_ValidScriptCompiles(t *testing.T) {
	prog, hasErrors := compile(t, "length = 14\nm = sma(close, length)\nplot(m, \"ma\")\n")
	if hasErrors {
		t.Fatalf("expected no errors")
	}
	if prog == nil {
		t.Fatalf("expected a program")
	}
}

func TestLower_ArrayLiteralChecksElements(t *testing.T) {
	prog, hasErrors := compile(t, "pair() => [1, 2]\n[a, b] = pair()\nplot(a, \"a\")\n")
	if hasErrors {
		t.Fatalf("expected no errors")
	}
	if prog == nil {
		t.Fatalf("expected a program")
	}
}

func TestLower_ArrayLiteralWithUndefinedElementFails(t *testing.T) {
	_, hasErrors := compile(t, "x = [1, nonexistent_var]\n")
	if !hasErrors {
		t.Fatalf("expected an error for an undefined identifier inside an array literal")
	}
}

func TestLower_UndefinedIdentifierFails(t *testing.T) {
	_, hasErrors := compile(t, "y = nonexistent_var + 1\n")
	if !hasErrors {
		t.Fatalf("expected undefined identifier error")
	}
}

func TestLower_DuplicateVarDefFails(t *testing.T) {
	_, hasErrors := compile(t, "x = 1\nx = 2\n")
	if !hasErrors {
		t.Fatalf("expected duplicate definition error")
	}
}

func TestLower_UnknownCallFails(t *testing.T) {
	_, hasErrors := compile(t, "y = frobnicate(close)\n")
	if !hasErrors {
		t.Fatalf("expected undefined function error")
	}
}

func TestLower_ArityMismatchOnUserFunction(t *testing.T) {
	_, hasErrors := compile(t, "double(n) => n * 2\ny = double(1, 2)\n")
	if !hasErrors {
		t.Fatalf("expected arity error")
	}
}

func TestLower_StdlibArityMismatch(t *testing.T) {
	_, hasErrors := compile(t, "y = sma(close)\n")
	if !hasErrors {
		t.Fatalf("expected stdlib arity error")
	}
}

func TestLower_UserFunctionsCanCallEachOther(t *testing.T) {
	_, hasErrors := compile(t, "inc(n) => n + 1\ndouble_inc(n) => inc(n) * 2\ny = double_inc(3)\n")
	if hasErrors {
		t.Fatalf("expected no errors")
	}
}

func TestLower_VarAssignRequiresPriorDef(t *testing.T) {
	_, hasErrors := compile(t, "x := 1\n")
	if !hasErrors {
		t.Fatalf("expected error assigning to undefined variable")
	}
}
