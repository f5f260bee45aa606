package lexer

import (
	"testing"

	"lumen/token"
)

func TestNextToken(t *testing.T) {
	input := `var x = 5
var y = 10.5
var name = "Chidi"
print(name)
true
false
nil
if (x <= y) { print("ok") } else { print("no") }
!= == >=
// a comment
fun add(a, b) { return a + b }
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.VAR, "var"},
		{token.IDENT, "x"},
		{token.ASSIGN, "="},
		{token.NUMBER, "5"},
		{token.VAR, "var"},
		{token.IDENT, "y"},
		{token.ASSIGN, "="},
		{token.NUMBER, "10.5"},
		{token.VAR, "var"},
		{token.IDENT, "name"},
		{token.ASSIGN, "="},
		{token.STRING, "Chidi"},
		{token.PRINT, "print"},
		{token.LPAREN, "("},
		{token.IDENT, "name"},
		{token.RPAREN, ")"},
		{token.TRUE, "true"},
		{token.FALSE, "false"},
		{token.NIL, "nil"},
		{token.IF, "if"},
		{token.LPAREN, "("},
		{token.IDENT, "x"},
		{token.LT_EQ, "<="},
		{token.IDENT, "y"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.LPAREN, "("},
		{token.STRING, "ok"},
		{token.RPAREN, ")"},
		{token.RBRACE, "}"},
		{token.ELSE, "else"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.LPAREN, "("},
		{token.STRING, "no"},
		{token.RPAREN, ")"},
		{token.RBRACE, "}"},
		{token.NOT_EQ, "!="},
		{token.EQ, "=="},
		{token.GT_EQ, ">="},
		{token.FUN, "fun"},
		{token.IDENT, "add"},
		{token.LPAREN, "("},
		{token.IDENT, "a"},
		{token.COMMA, ","},
		{token.IDENT, "b"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.RETURN, "return"},
		{token.IDENT, "a"},
		{token.PLUS, "+"},
		{token.IDENT, "b"},
		{token.RBRACE, "}"},
		{token.EOF, ""},
	}

	l := New(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q",
				i, tt.expectedType, tok.Type)
		}

		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestLineTracking(t *testing.T) {
	input := "var a = 1\nvar b = 2\n"
	l := New(input)

	var lastLine int
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
		lastLine = tok.Line
	}
	if lastLine != 2 {
		t.Fatalf("expected final token on line 2, got %d", lastLine)
	}
}
