package jack

import (
	"io"

	"github.com/edmccard/nand2tetris/pkg/utils"
	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Jack Parser

// This section defines the Parser for the Jack programming language.
//
// Unlike the Vm and Asm languages (parsed with 'goparsec' combinators), Jack is parsed by a
// predictive, one-token-of-lookahead recursive-descent parser hand rolled on top of the jack.Lexer.
// The grammar has no operator precedence of its own (expressions are parsed strictly left to
// right, each binary operator folding the expression parsed so far into the left-hand side of
// a new 'BinaryExpr') so a single token of lookahead is always enough to decide what production
// to take next.
type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint: reads the whole 'reader' content, tokenizes it and then recursively
// descends into the grammar starting from its root production, a single 'class' declaration.
func (p *Parser) Parse() (Class, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return Class{}, errors.Wrap(err, "cannot read from 'io.Reader'")
	}

	lexer, err := NewLexer(string(content))
	if err != nil {
		return Class{}, errors.Wrap(err, "failed to tokenize input content")
	}

	return parseClass(lexer)
}

// parseErr builds a 'utils.Diagnostic' of kind 'ParseError' for a token mismatch, following the
// 'expected X, found Y' phrasing used throughout the grammar productions below.
func parseErr(tok Token, expected string) error {
	if tok.Kind == EOFTok {
		return utils.Newf(utils.ParseError, "", tok.Line, "expected %s, found EOF", expected)
	}
	return utils.Newf(utils.ParseError, "", tok.Line, "expected %s, found '%s'", expected, tok.Text)
}

// expect consumes the current token, failing unless it matches both 'kind' and (when non empty) 'text'.
func expect(lx *Lexer, kind TokenKind, text string) (Token, error) {
	tok := lx.Next()
	if tok.Kind != kind || (text != "" && tok.Text != text) {
		expected := text
		if expected == "" {
			expected = kind.String()
		}
		return tok, parseErr(tok, expected)
	}
	return tok, nil
}

func isSym(tok Token, text string) bool { return tok.Kind == SymbolTok && tok.Text == text }
func isKw(tok Token, text string) bool  { return tok.Kind == KeywordTok && tok.Text == text }

// ----------------------------------------------------------------------------
// class -> 'class' className '{' classVarDec* subroutineDec* '}'

func parseClass(lx *Lexer) (Class, error) {
	if _, err := expect(lx, KeywordTok, "class"); err != nil {
		return Class{}, err
	}

	nameTok, err := expect(lx, IdentTok, "")
	if err != nil {
		return Class{}, err
	}

	if _, err := expect(lx, SymbolTok, "{"); err != nil {
		return Class{}, err
	}

	class := Class{
		Name:        nameTok.Text,
		Fields:      utils.OrderedMap[string, Variable]{},
		Subroutines: utils.OrderedMap[string, Subroutine]{},
	}

	for isKw(lx.Peek(), "static") || isKw(lx.Peek(), "field") {
		vars, err := parseClassVarDec(lx)
		if err != nil {
			return Class{}, err
		}
		for _, v := range vars {
			class.Fields.Set(v.Name, v)
		}
	}

	for {
		tok := lx.Peek()
		if !isKw(tok, "constructor") && !isKw(tok, "function") && !isKw(tok, "method") {
			break
		}
		sub, err := parseSubroutineDec(lx)
		if err != nil {
			return Class{}, err
		}
		class.Subroutines.Set(sub.Name, sub)
	}

	if _, err := expect(lx, SymbolTok, "}"); err != nil {
		return Class{}, err
	}

	return class, nil
}

// classVarDec -> ('static' | 'field') type varName (',' varName)* ';'
func parseClassVarDec(lx *Lexer) ([]Variable, error) {
	kindTok := lx.Next()
	varType := Static
	if kindTok.Text == "field" {
		varType = Field
	}

	dtype, err := parseType(lx)
	if err != nil {
		return nil, err
	}

	names, err := parseVarNameList(lx)
	if err != nil {
		return nil, err
	}

	if _, err := expect(lx, SymbolTok, ";"); err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, Variable{Name: name, VarType: varType, DataType: dtype, ClassName: dtype.Subtype})
	}
	return vars, nil
}

// varName (',' varName)*
func parseVarNameList(lx *Lexer) ([]string, error) {
	first, err := expect(lx, IdentTok, "")
	if err != nil {
		return nil, err
	}
	names := []string{first.Text}

	for isSym(lx.Peek(), ",") {
		lx.Next()
		next, err := expect(lx, IdentTok, "")
		if err != nil {
			return nil, err
		}
		names = append(names, next.Text)
	}
	return names, nil
}

// type -> 'int' | 'char' | 'boolean' | className
// 'void' is only legal as a subroutine return type, so it is parsed separately in parseSubroutineDec.
func parseType(lx *Lexer) (DataType, error) {
	tok := lx.Next()
	switch {
	case isKw(tok, "int"):
		return DataType{Main: Int}, nil
	case isKw(tok, "char"):
		return DataType{Main: Char}, nil
	case isKw(tok, "boolean"):
		return DataType{Main: Bool}, nil
	case tok.Kind == IdentTok:
		return DataType{Main: Object, Subtype: tok.Text}, nil
	default:
		return DataType{}, parseErr(tok, "type")
	}
}

// ----------------------------------------------------------------------------
// subroutineDec -> ('constructor' | 'function' | 'method') ('void' | type) subroutineName
//                  '(' parameterList ')' subroutineBody

func parseSubroutineDec(lx *Lexer) (Subroutine, error) {
	kindTok := lx.Next()
	var kind SubroutineType
	switch kindTok.Text {
	case "constructor":
		kind = Constructor
	case "function":
		kind = Function
	case "method":
		kind = Method
	}

	var retType DataType
	if isKw(lx.Peek(), "void") {
		lx.Next()
		retType = DataType{Main: Void}
	} else {
		dtype, err := parseType(lx)
		if err != nil {
			return Subroutine{}, err
		}
		retType = dtype
	}

	nameTok, err := expect(lx, IdentTok, "")
	if err != nil {
		return Subroutine{}, err
	}

	if _, err := expect(lx, SymbolTok, "("); err != nil {
		return Subroutine{}, err
	}

	args, err := parseParameterList(lx)
	if err != nil {
		return Subroutine{}, err
	}

	if _, err := expect(lx, SymbolTok, ")"); err != nil {
		return Subroutine{}, err
	}

	stmts, err := parseSubroutineBody(lx)
	if err != nil {
		return Subroutine{}, err
	}

	return Subroutine{Name: nameTok.Text, Type: kind, Return: retType, Arguments: args, Statements: stmts}, nil
}

// parameterList -> ((type varName) (',' type varName)*)?
func parseParameterList(lx *Lexer) (utils.OrderedMap[string, Variable], error) {
	args := utils.OrderedMap[string, Variable]{}

	if isSym(lx.Peek(), ")") {
		return args, nil
	}

	for {
		dtype, err := parseType(lx)
		if err != nil {
			return args, err
		}
		nameTok, err := expect(lx, IdentTok, "")
		if err != nil {
			return args, err
		}
		args.Set(nameTok.Text, Variable{Name: nameTok.Text, VarType: Parameter, DataType: dtype, ClassName: dtype.Subtype})

		if !isSym(lx.Peek(), ",") {
			break
		}
		lx.Next()
	}

	return args, nil
}

// subroutineBody -> '{' statement* '}'
// 'varDec' is just another statement-starter ('var' ...) so it is folded into parseStatements
// alongside do/let/if/while/return, matching the 'Statement' interface's flat shape.
func parseSubroutineBody(lx *Lexer) ([]Statement, error) {
	if _, err := expect(lx, SymbolTok, "{"); err != nil {
		return nil, err
	}

	stmts, err := parseStatements(lx)
	if err != nil {
		return nil, err
	}

	if _, err := expect(lx, SymbolTok, "}"); err != nil {
		return nil, err
	}

	return stmts, nil
}

// ----------------------------------------------------------------------------
// statements -> (varDec | letStmt | ifStmt | whileStmt | doStmt | returnStmt)*

func parseStatements(lx *Lexer) ([]Statement, error) {
	stmts := []Statement{}

	for {
		tok := lx.Peek()
		if tok.Kind != KeywordTok {
			break
		}

		var (
			stmt Statement
			err  error
		)

		switch tok.Text {
		case "var":
			stmt, err = parseVarDec(lx)
		case "let":
			stmt, err = parseLetStmt(lx)
		case "if":
			stmt, err = parseIfStmt(lx)
		case "while":
			stmt, err = parseWhileStmt(lx)
		case "do":
			stmt, err = parseDoStmt(lx)
		case "return":
			stmt, err = parseReturnStmt(lx)
		default:
			return stmts, nil
		}

		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}

	return stmts, nil
}

// varDec -> 'var' type varName (',' varName)* ';'
func parseVarDec(lx *Lexer) (Statement, error) {
	lx.Next() // 'var'

	dtype, err := parseType(lx)
	if err != nil {
		return nil, err
	}

	names, err := parseVarNameList(lx)
	if err != nil {
		return nil, err
	}

	if _, err := expect(lx, SymbolTok, ";"); err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		vars = append(vars, Variable{Name: name, VarType: Local, DataType: dtype, ClassName: dtype.Subtype})
	}
	return VarStmt{Vars: vars}, nil
}

// letStmt -> 'let' varName ('[' expression ']')? '=' expression ';'
func parseLetStmt(lx *Lexer) (Statement, error) {
	lx.Next() // 'let'

	nameTok, err := expect(lx, IdentTok, "")
	if err != nil {
		return nil, err
	}

	var lhs Expression = VarExpr{Var: nameTok.Text}

	if isSym(lx.Peek(), "[") {
		lx.Next()
		index, err := parseExpression(lx)
		if err != nil {
			return nil, err
		}
		if _, err := expect(lx, SymbolTok, "]"); err != nil {
			return nil, err
		}
		lhs = ArrayExpr{Var: nameTok.Text, Index: index}
	}

	if _, err := expect(lx, SymbolTok, "="); err != nil {
		return nil, err
	}

	rhs, err := parseExpression(lx)
	if err != nil {
		return nil, err
	}

	if _, err := expect(lx, SymbolTok, ";"); err != nil {
		return nil, err
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

// ifStmt -> 'if' '(' expression ')' '{' statement* '}' ('else' '{' statement* '}')?
func parseIfStmt(lx *Lexer) (Statement, error) {
	lx.Next() // 'if'

	if _, err := expect(lx, SymbolTok, "("); err != nil {
		return nil, err
	}
	cond, err := parseExpression(lx)
	if err != nil {
		return nil, err
	}
	if _, err := expect(lx, SymbolTok, ")"); err != nil {
		return nil, err
	}

	thenBlock, err := parseSubroutineBody(lx)
	if err != nil {
		return nil, err
	}

	var elseBlock []Statement
	if isKw(lx.Peek(), "else") {
		lx.Next()
		elseBlock, err = parseSubroutineBody(lx)
		if err != nil {
			return nil, err
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

// whileStmt -> 'while' '(' expression ')' '{' statement* '}'
func parseWhileStmt(lx *Lexer) (Statement, error) {
	lx.Next() // 'while'

	if _, err := expect(lx, SymbolTok, "("); err != nil {
		return nil, err
	}
	cond, err := parseExpression(lx)
	if err != nil {
		return nil, err
	}
	if _, err := expect(lx, SymbolTok, ")"); err != nil {
		return nil, err
	}

	block, err := parseSubroutineBody(lx)
	if err != nil {
		return nil, err
	}

	return WhileStmt{Condition: cond, Block: block}, nil
}

// doStmt -> 'do' subroutineCall ';'
func parseDoStmt(lx *Lexer) (Statement, error) {
	lx.Next() // 'do'

	call, err := parseSubroutineCall(lx)
	if err != nil {
		return nil, err
	}

	if _, err := expect(lx, SymbolTok, ";"); err != nil {
		return nil, err
	}

	return DoStmt{FuncCall: call}, nil
}

// returnStmt -> 'return' expression? ';'
func parseReturnStmt(lx *Lexer) (Statement, error) {
	lx.Next() // 'return'

	var expr Expression
	if !isSym(lx.Peek(), ";") {
		e, err := parseExpression(lx)
		if err != nil {
			return nil, err
		}
		expr = e
	}

	if _, err := expect(lx, SymbolTok, ";"); err != nil {
		return nil, err
	}

	return ReturnStmt{Expr: expr}, nil
}

// subroutineCall -> subroutineName '(' expressionList ')' | (className|varName) '.' subroutineName '(' expressionList ')'
func parseSubroutineCall(lx *Lexer) (FuncCallExpr, error) {
	firstTok, err := expect(lx, IdentTok, "")
	if err != nil {
		return FuncCallExpr{}, err
	}

	if isSym(lx.Peek(), ".") {
		lx.Next()
		methodTok, err := expect(lx, IdentTok, "")
		if err != nil {
			return FuncCallExpr{}, err
		}

		args, err := parseParenthesizedArgs(lx)
		if err != nil {
			return FuncCallExpr{}, err
		}

		return FuncCallExpr{IsExtCall: true, Var: firstTok.Text, FuncName: methodTok.Text, Arguments: args}, nil
	}

	args, err := parseParenthesizedArgs(lx)
	if err != nil {
		return FuncCallExpr{}, err
	}

	return FuncCallExpr{IsExtCall: false, FuncName: firstTok.Text, Arguments: args}, nil
}

func parseParenthesizedArgs(lx *Lexer) ([]Expression, error) {
	if _, err := expect(lx, SymbolTok, "("); err != nil {
		return nil, err
	}
	args, err := parseExpressionList(lx)
	if err != nil {
		return nil, err
	}
	if _, err := expect(lx, SymbolTok, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

// expressionList -> (expression (',' expression)*)?
func parseExpressionList(lx *Lexer) ([]Expression, error) {
	args := []Expression{}

	if isSym(lx.Peek(), ")") {
		return args, nil
	}

	for {
		expr, err := parseExpression(lx)
		if err != nil {
			return nil, err
		}
		args = append(args, expr)

		if !isSym(lx.Peek(), ",") {
			break
		}
		lx.Next()
	}

	return args, nil
}

// ----------------------------------------------------------------------------
// expression -> term (op term)*
//
// The Jack grammar has no operator precedence: the sequence of terms and operators is folded
// left to right into nested 'BinaryExpr' nodes, so '1 + 2 * 3' parses the same shape as a human
// reading strictly left to right would expect ('(1 + 2) * 3'), with parentheses the only way
// to override the evaluation order.
var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

func parseExpression(lx *Lexer) (Expression, error) {
	lhs, err := parseTerm(lx)
	if err != nil {
		return nil, err
	}

	for {
		tok := lx.Peek()
		op, ok := binaryOps[tok.Text]
		if tok.Kind != SymbolTok || !ok {
			break
		}
		lx.Next()

		rhs, err := parseTerm(lx)
		if err != nil {
			return nil, err
		}
		lhs = BinaryExpr{Type: op, Lhs: lhs, Rhs: rhs}
	}

	return lhs, nil
}

// term -> intConst | stringConst | keywordConst | varName | varName '[' expr ']' |
//         subroutineCall | '(' expression ')' | unaryOp term
func parseTerm(lx *Lexer) (Expression, error) {
	tok := lx.Peek()

	switch {
	case tok.Kind == IntTok:
		lx.Next()
		return LiteralExpr{Type: DataType{Main: Int}, Value: tok.Text}, nil

	case tok.Kind == StringTok:
		lx.Next()
		return LiteralExpr{Type: DataType{Main: String}, Value: tok.Text}, nil

	case isKw(tok, "true"), isKw(tok, "false"):
		lx.Next()
		return LiteralExpr{Type: DataType{Main: Bool}, Value: tok.Text}, nil

	case isKw(tok, "null"):
		lx.Next()
		return LiteralExpr{Type: DataType{Main: Null}, Value: tok.Text}, nil

	case isKw(tok, "this"):
		lx.Next()
		return VarExpr{Var: "this"}, nil

	case isSym(tok, "-"):
		lx.Next()
		rhs, err := parseTerm(lx)
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: Negation, Rhs: rhs}, nil

	case isSym(tok, "~"):
		lx.Next()
		rhs, err := parseTerm(lx)
		if err != nil {
			return nil, err
		}
		return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil

	case isSym(tok, "("):
		lx.Next()
		expr, err := parseExpression(lx)
		if err != nil {
			return nil, err
		}
		if _, err := expect(lx, SymbolTok, ")"); err != nil {
			return nil, err
		}
		return expr, nil

	case tok.Kind == IdentTok:
		return parseIdentTerm(lx)

	default:
		return nil, parseErr(tok, "expression")
	}
}

// Disambiguates the 4 term shapes that start with an identifier: a bare variable reference, an
// array subscript, an unqualified subroutine call and a qualified ('Class.method' or 'var.method')
// subroutine call. One extra token of lookahead (beyond the identifier itself) is all that's needed.
func parseIdentTerm(lx *Lexer) (Expression, error) {
	nameTok := lx.Next()
	next := lx.Peek()

	switch {
	case isSym(next, "["):
		lx.Next()
		index, err := parseExpression(lx)
		if err != nil {
			return nil, err
		}
		if _, err := expect(lx, SymbolTok, "]"); err != nil {
			return nil, err
		}
		return ArrayExpr{Var: nameTok.Text, Index: index}, nil

	case isSym(next, "("):
		args, err := parseParenthesizedArgs(lx)
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: false, FuncName: nameTok.Text, Arguments: args}, nil

	case isSym(next, "."):
		lx.Next()
		methodTok, err := expect(lx, IdentTok, "")
		if err != nil {
			return nil, err
		}
		args, err := parseParenthesizedArgs(lx)
		if err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: true, Var: nameTok.Text, FuncName: methodTok.Text, Arguments: args}, nil

	default:
		return VarExpr{Var: nameTok.Text}, nil
	}
}
