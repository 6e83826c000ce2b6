package jack

import (
	"strings"

	"github.com/edmccard/nand2tetris/pkg/utils"
)

// ----------------------------------------------------------------------------
// Lexer

// The Lexer turns Jack source text into a restartable stream of Token(s). It
// tokenizes eagerly (the whole input is scanned once, up front) rather than
// lazily, so that 'Peek' and 'Reset' are free: the parser gets its one token
// of lookahead and can rewind without re-scanning anything.
//
// Recognized lexemes: reserved words (mapped to KeywordTok), identifiers,
// unsigned integer literals, string literals (no escapes, terminated by the
// next '"' on the same line), the fixed set of single-character symbols, and
// '//' / '/* ... */' comments (block comments may span lines). Whitespace is
// discarded. The stream always ends with two EOFTok markers in a row, so a
// caller doing one token of lookahead never needs to special-case the end.
type TokenKind uint8

const (
	KeywordTok TokenKind = iota
	SymbolTok
	IntTok
	StringTok
	IdentTok
	EOFTok
)

func (k TokenKind) String() string {
	switch k {
	case KeywordTok:
		return "keyword"
	case SymbolTok:
		return "symbol"
	case IntTok:
		return "integer constant"
	case StringTok:
		return "string constant"
	case IdentTok:
		return "identifier"
	case EOFTok:
		return "EOF"
	default:
		return "unknown"
	}
}

// Token is a single lexeme: its Kind, its literal Text (the keyword spelling,
// the symbol character, the identifier name, the literal's value with string
// quotes already stripped) and its 1-based source Line.
type Token struct {
	Kind TokenKind
	Text string
	Line int
}

// reservedWords is the fixed set of Jack keywords; anything else matching an
// identifier's lexical shape is an IdentTok.
var reservedWords = map[string]bool{
	"class": true, "constructor": true, "function": true, "method": true,
	"field": true, "static": true, "var": true,
	"int": true, "char": true, "boolean": true, "void": true,
	"true": true, "false": true, "null": true, "this": true,
	"let": true, "do": true, "if": true, "else": true, "while": true, "return": true,
}

// symbolChars is the fixed set of single-character Jack symbols.
const symbolChars = "{}()[].,;+-*/&|<>=~"

// Lexer holds the fully-tokenized stream and a cursor into it.
type Lexer struct {
	tokens []Token
	pos    int
}

// NewLexer tokenizes 'source' in full, returning a Lexer positioned at the
// first token. Fails fatally (no partial stream) on an invalid character, an
// unterminated string literal or an unterminated block comment.
func NewLexer(source string) (*Lexer, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	return &Lexer{tokens: tokens}, nil
}

// Next returns the current token and advances the cursor; once the stream is
// exhausted it keeps returning the final EOFTok instead of panicking.
func (l *Lexer) Next() Token {
	tok := l.tokens[l.pos]
	if l.pos < len(l.tokens)-1 {
		l.pos++
	}
	return tok
}

// Peek returns the current token without advancing, giving the parser its one
// token of lookahead.
func (l *Lexer) Peek() Token {
	return l.tokens[l.pos]
}

// Reset rewinds the cursor to the beginning, making the stream replayable.
func (l *Lexer) Reset() { l.pos = 0 }

// tokenize scans 'source' line by line (lines are 1-based) producing the full
// Token slice, trailing EOFTok twice per the Lexer's restartable-past-end contract.
func tokenize(source string) ([]Token, error) {
	lines := strings.Split(source, "\n")
	tokens := []Token{}

	inBlockComment, blockStartLine := false, 0

	for lineIdx, line := range lines {
		lineNo := lineIdx + 1
		i := 0

		for i < len(line) {
			ch := line[i]

			if inBlockComment {
				if end := strings.Index(line[i:], "*/"); end >= 0 {
					i += end + 2
					inBlockComment = false
					continue
				}
				break // rest of this line is still inside the comment
			}

			switch {
			case ch == ' ' || ch == '\t' || ch == '\r':
				i++

			case ch == '/' && i+1 < len(line) && line[i+1] == '/':
				i = len(line) // rest of the line is a line comment

			case ch == '/' && i+1 < len(line) && line[i+1] == '*':
				if end := strings.Index(line[i+2:], "*/"); end >= 0 {
					i += end + 4
				} else {
					inBlockComment, blockStartLine = true, lineNo
					i = len(line)
				}

			case ch == '"':
				end := strings.IndexByte(line[i+1:], '"')
				if end < 0 {
					return nil, utils.Newf(utils.LexError, "", lineNo, "unterminated string literal")
				}
				tokens = append(tokens, Token{Kind: StringTok, Text: line[i+1 : i+1+end], Line: lineNo})
				i += end + 2

			case ch >= '0' && ch <= '9':
				j := i
				for j < len(line) && line[j] >= '0' && line[j] <= '9' {
					j++
				}
				tokens = append(tokens, Token{Kind: IntTok, Text: line[i:j], Line: lineNo})
				i = j

			case isIdentStart(ch):
				j := i
				for j < len(line) && isIdentPart(line[j]) {
					j++
				}
				text, kind := line[i:j], IdentTok
				if reservedWords[text] {
					kind = KeywordTok
				}
				tokens = append(tokens, Token{Kind: kind, Text: text, Line: lineNo})
				i = j

			case strings.IndexByte(symbolChars, ch) >= 0:
				tokens = append(tokens, Token{Kind: SymbolTok, Text: string(ch), Line: lineNo})
				i++

			default:
				return nil, utils.Newf(utils.LexError, "", lineNo, "invalid character %q", ch)
			}
		}
	}

	if inBlockComment {
		return nil, utils.Newf(utils.LexError, "", blockStartLine, "unterminated block comment")
	}

	eofLine := len(lines)
	return append(tokens, Token{Kind: EOFTok, Line: eofLine}, Token{Kind: EOFTok, Line: eofLine}), nil
}

func isIdentStart(ch byte) bool {
	return (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch == '_' || (ch >= '0' && ch <= '9')
}
