package lexer

import (
	"testing"

	"github.com/hymnlang/hymn/pkg/token"
	"github.com/stretchr/testify/require"
)

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	input := `, : ; . ( ) [ ] { } = + - * / % ! ~ & | ^ == != <= >= << >> < >`

	expected := []token.Kind{
		token.COMMA, token.COLON, token.SEMICOLON, token.DOT,
		token.LEFT_PAREN, token.RIGHT_PAREN, token.LEFT_SQUARE, token.RIGHT_SQUARE,
		token.LEFT_CURLY, token.RIGHT_CURLY, token.ASSIGN, token.ADD, token.SUBTRACT,
		token.MULTIPLY, token.DIVIDE, token.MODULO, token.NOT, token.BIT_NOT,
		token.BIT_AND, token.BIT_OR, token.BIT_XOR, token.EQUAL, token.NOT_EQUAL,
		token.LESS_EQUAL, token.GREATER_EQUAL, token.BIT_LEFT_SHIFT, token.BIT_RIGHT_SHIFT,
		token.LESS, token.GREATER, token.EOF,
	}

	l := New(input)
	for i, want := range expected {
		tok := l.Next()
		require.Equalf(t, want, tok.Kind, "token %d", i)
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	l := New("let x = true false none iterate foo_bar")
	kinds := []token.Kind{
		token.LET, token.IDENT, token.ASSIGN, token.TRUE, token.FALSE,
		token.NONE, token.ITERATE, token.IDENT, token.EOF,
	}
	for i, want := range kinds {
		tok := l.Next()
		require.Equalf(t, want, tok.Kind, "token %d", i)
	}
}

func TestNextTokenNumbers(t *testing.T) {
	l := New("3 4.5 10 0.1")
	tok := l.Next()
	require.Equal(t, token.INTEGER, tok.Kind)
	require.Equal(t, "3", tok.Text)

	tok = l.Next()
	require.Equal(t, token.FLOAT, tok.Kind)
	require.Equal(t, "4.5", tok.Text)

	tok = l.Next()
	require.Equal(t, token.INTEGER, tok.Kind)
	require.Equal(t, "10", tok.Text)

	tok = l.Next()
	require.Equal(t, token.FLOAT, tok.Kind)
	require.Equal(t, "0.1", tok.Text)
}

func TestNextTokenStrings(t *testing.T) {
	l := New(`"hello" 'world' "with \"escaped\" quote"`)

	tok := l.Next()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, "hello", tok.Text)

	tok = l.Next()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, "world", tok.Text)

	tok = l.Next()
	require.Equal(t, token.STRING, tok.Kind)
	require.Equal(t, `with \"escaped\" quote`, tok.Text)
}

func TestNextTokenLineComment(t *testing.T) {
	l := New("let a = 1 -- this is ignored\nlet b = 2")
	var kinds []token.Kind
	for {
		tok := l.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == token.EOF {
			break
		}
	}
	require.Equal(t, []token.Kind{
		token.LET, token.IDENT, token.ASSIGN, token.INTEGER,
		token.LET, token.IDENT, token.ASSIGN, token.INTEGER, token.EOF,
	}, kinds)
}

func TestNextTokenRowTracking(t *testing.T) {
	l := New("a\nb\n\nc")
	tok := l.Next()
	require.Equal(t, 1, tok.Row)
	tok = l.Next()
	require.Equal(t, 2, tok.Row)
	tok = l.Next()
	require.Equal(t, 4, tok.Row)
}

func TestNextTokenIllegal(t *testing.T) {
	l := New("@")
	tok := l.Next()
	require.Equal(t, token.ILLEGAL, tok.Kind)
	require.Equal(t, "@", tok.Text)
}
