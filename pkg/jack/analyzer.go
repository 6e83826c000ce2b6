package jack

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ----------------------------------------------------------------------------
// Jack Analyzer

// The Analyzer renders a typed 'jack.Class' AST (the one 'jack.Parser' produces, not a raw
// parser-combinator tree) back out as nand2tetris-standard bracketed XML, one tag pair per
// terminal and non-terminal, mirroring the teaching tool shipped with project 10. It is a
// read-only, diagnostic/debugging aid: nothing downstream (the Lowerer, the TypeChecker) reads
// its output, and rendering never fails since it's walking an already-parsed, well-formed tree.
type Analyzer struct {
	w      io.Writer
	indent int
}

// Initializes and returns to the caller a brand new 'Analyzer' struct writing to 'w'.
func NewAnalyzer(w io.Writer) Analyzer {
	return Analyzer{w: w}
}

func (a *Analyzer) write(line string) {
	fmt.Fprintf(a.w, "%s%s\n", strings.Repeat(" ", a.indent), line)
}

func (a *Analyzer) openTag(tag string) {
	a.write(fmt.Sprintf("<%s>", tag))
	a.indent += 2
}

func (a *Analyzer) closeTag(tag string) {
	a.indent -= 2
	a.write(fmt.Sprintf("</%s>", tag))
}

func (a *Analyzer) tag(tag, text string) {
	a.write(fmt.Sprintf("<%s> %s </%s>", tag, escapeXML(text), tag))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// String renders 'c' as nand2tetris-standard bracketed XML, the same shape the standalone
// analyzer tool would produce for the .jack source this class was parsed from.
func (c Class) String() string {
	var buf bytes.Buffer
	a := NewAnalyzer(&buf)
	a.AnalyzeClass(c)
	return buf.String()
}

// AnalyzeClass walks 'class', writing its full XML rendering to the Analyzer's writer.
func (a *Analyzer) AnalyzeClass(class Class) {
	a.openTag("class")
	a.tag("keyword", "class")
	a.tag("identifier", class.Name)
	a.tag("symbol", "{")

	for _, field := range class.Fields.Entries() {
		a.analyzeClassVarDec(field)
	}
	for _, sub := range class.Subroutines.Entries() {
		a.analyzeSubroutineDec(sub)
	}

	a.tag("symbol", "}")
	a.closeTag("class")
}

// A 'jack.Class' flattens every field/static declared together in source into one 'Variable'
// entry per name, so (unlike the grouped 'varDec' case below) each gets its own 'classVarDec' tag.
func (a *Analyzer) analyzeClassVarDec(v Variable) {
	a.openTag("classVarDec")
	a.tag("keyword", string(v.VarType))
	a.analyzeTypeAndName(v.DataType, v.Name)
	a.tag("symbol", ";")
	a.closeTag("classVarDec")
}

func (a *Analyzer) analyzeTypeAndName(dtype DataType, name string) {
	if dtype.Main == Object {
		a.tag("identifier", dtype.Subtype)
	} else if dtype.Main == Bool {
		a.tag("keyword", "boolean")
	} else {
		a.tag("keyword", string(dtype.Main))
	}
	a.tag("identifier", name)
}

func (a *Analyzer) analyzeSubroutineDec(sub Subroutine) {
	a.openTag("subroutineDec")
	a.tag("keyword", string(sub.Type))

	if sub.Return.Main == Object {
		a.tag("identifier", sub.Return.Subtype)
	} else if sub.Return.Main == Bool {
		a.tag("keyword", "boolean")
	} else {
		a.tag("keyword", string(sub.Return.Main))
	}
	a.tag("identifier", sub.Name)

	a.tag("symbol", "(")
	a.openTag("parameterList")
	for i, arg := range sub.Arguments.Entries() {
		if i > 0 {
			a.tag("symbol", ",")
		}
		a.analyzeTypeAndName(arg.DataType, arg.Name)
	}
	a.closeTag("parameterList")
	a.tag("symbol", ")")

	a.openTag("subroutineBody")
	a.tag("symbol", "{")

	// 'varDec's are emitted first and skipped on the 'statements' pass below; the output follows
	// source order only when every 'var' comes before the other statements (the parser accepts
	// a 'var' anywhere in the body).
	for _, stmt := range sub.Statements {
		if v, ok := stmt.(VarStmt); ok {
			a.analyzeVarDec(v)
		}
	}

	a.openTag("statements")
	for _, stmt := range sub.Statements {
		if _, ok := stmt.(VarStmt); ok {
			continue
		}
		a.analyzeStatement(stmt)
	}
	a.closeTag("statements")

	a.tag("symbol", "}")
	a.closeTag("subroutineBody")
	a.closeTag("subroutineDec")
}

func (a *Analyzer) analyzeVarDec(stmt VarStmt) {
	a.openTag("varDec")
	a.tag("keyword", "var")
	for i, v := range stmt.Vars {
		if i == 0 {
			a.analyzeTypeAndName(v.DataType, v.Name)
			continue
		}
		a.tag("symbol", ",")
		a.tag("identifier", v.Name)
	}
	a.tag("symbol", ";")
	a.closeTag("varDec")
}

func (a *Analyzer) analyzeStatement(stmt Statement) {
	switch s := stmt.(type) {
	case LetStmt:
		a.analyzeLetStmt(s)
	case IfStmt:
		a.analyzeIfStmt(s)
	case WhileStmt:
		a.analyzeWhileStmt(s)
	case DoStmt:
		a.analyzeDoStmt(s)
	case ReturnStmt:
		a.analyzeReturnStmt(s)
	}
}

func (a *Analyzer) analyzeLetStmt(stmt LetStmt) {
	a.openTag("letStatement")
	a.tag("keyword", "let")

	switch lhs := stmt.Lhs.(type) {
	case VarExpr:
		a.tag("identifier", lhs.Var)
	case ArrayExpr:
		a.tag("identifier", lhs.Var)
		a.tag("symbol", "[")
		a.analyzeExpression(lhs.Index)
		a.tag("symbol", "]")
	}

	a.tag("symbol", "=")
	a.analyzeExpression(stmt.Rhs)
	a.tag("symbol", ";")
	a.closeTag("letStatement")
}

func (a *Analyzer) analyzeIfStmt(stmt IfStmt) {
	a.openTag("ifStatement")
	a.tag("keyword", "if")
	a.tag("symbol", "(")
	a.analyzeExpression(stmt.Condition)
	a.tag("symbol", ")")
	a.tag("symbol", "{")
	a.openTag("statements")
	for _, s := range stmt.ThenBlock {
		a.analyzeStatement(s)
	}
	a.closeTag("statements")
	a.tag("symbol", "}")

	if stmt.ElseBlock != nil {
		a.tag("keyword", "else")
		a.tag("symbol", "{")
		a.openTag("statements")
		for _, s := range stmt.ElseBlock {
			a.analyzeStatement(s)
		}
		a.closeTag("statements")
		a.tag("symbol", "}")
	}

	a.closeTag("ifStatement")
}

func (a *Analyzer) analyzeWhileStmt(stmt WhileStmt) {
	a.openTag("whileStatement")
	a.tag("keyword", "while")
	a.tag("symbol", "(")
	a.analyzeExpression(stmt.Condition)
	a.tag("symbol", ")")
	a.tag("symbol", "{")
	a.openTag("statements")
	for _, s := range stmt.Block {
		a.analyzeStatement(s)
	}
	a.closeTag("statements")
	a.tag("symbol", "}")
	a.closeTag("whileStatement")
}

func (a *Analyzer) analyzeDoStmt(stmt DoStmt) {
	a.openTag("doStatement")
	a.tag("keyword", "do")
	a.analyzeCall(stmt.FuncCall)
	a.tag("symbol", ";")
	a.closeTag("doStatement")
}

func (a *Analyzer) analyzeReturnStmt(stmt ReturnStmt) {
	a.openTag("returnStatement")
	a.tag("keyword", "return")
	if stmt.Expr != nil {
		a.analyzeExpression(stmt.Expr)
	}
	a.tag("symbol", ";")
	a.closeTag("returnStatement")
}

var exprSymbols = map[ExprType]string{
	Plus: "+", Minus: "-", Multiply: "*", Divide: "/",
	BoolAnd: "&", BoolOr: "|", LessThan: "<", GreatThan: ">", Equal: "=",
}

// analyzeExpression un-flattens the left-nested 'BinaryExpr' chain the parser builds back into
// the classic term/operator/term/... sequence before rendering it, one 'term' tag per operand.
func (a *Analyzer) analyzeExpression(expr Expression) {
	a.openTag("expression")

	terms, ops := flattenExpression(expr)
	a.analyzeTerm(terms[0])
	for i, op := range ops {
		a.tag("symbol", exprSymbols[op])
		a.analyzeTerm(terms[i+1])
	}

	a.closeTag("expression")
}

func flattenExpression(expr Expression) ([]Expression, []ExprType) {
	if b, ok := expr.(BinaryExpr); ok {
		terms, ops := flattenExpression(b.Lhs)
		return append(terms, b.Rhs), append(ops, b.Type)
	}
	return []Expression{expr}, nil
}

func (a *Analyzer) analyzeTerm(expr Expression) {
	a.openTag("term")

	switch e := expr.(type) {
	case LiteralExpr:
		a.analyzeLiteral(e)

	case VarExpr:
		if e.Var == "this" {
			a.tag("keyword", "this")
		} else {
			a.tag("identifier", e.Var)
		}

	case ArrayExpr:
		a.tag("identifier", e.Var)
		a.tag("symbol", "[")
		a.analyzeExpression(e.Index)
		a.tag("symbol", "]")

	case FuncCallExpr:
		a.analyzeCall(e)

	case UnaryExpr:
		a.tag("symbol", unarySymbol(e.Type))
		a.analyzeTerm(e.Rhs)

	default:
		// Only reached for a parenthesized sub-expression: the parser discards the grouping
		// once it's not needed to disambiguate, so a bare 'BinaryExpr' found at term position
		// is exactly that, and gets its enclosing parens put back for the rendering.
		a.tag("symbol", "(")
		a.analyzeExpression(expr)
		a.tag("symbol", ")")
	}

	a.closeTag("term")
}

func unarySymbol(t ExprType) string {
	if t == BoolNot {
		return "~"
	}
	return "-" // Negation
}

func (a *Analyzer) analyzeLiteral(lit LiteralExpr) {
	switch lit.Type.Main {
	case Int:
		a.tag("integerConstant", lit.Value)
	case String:
		a.tag("stringConstant", lit.Value)
	default:
		a.tag("keyword", lit.Value)
	}
}

func (a *Analyzer) analyzeCall(call FuncCallExpr) {
	if call.IsExtCall {
		a.tag("identifier", call.Var)
		a.tag("symbol", ".")
	}
	a.tag("identifier", call.FuncName)

	a.tag("symbol", "(")
	a.openTag("expressionList")
	for i, arg := range call.Arguments {
		if i > 0 {
			a.tag("symbol", ",")
		}
		a.analyzeExpression(arg)
	}
	a.closeTag("expressionList")
	a.tag("symbol", ")")
}
