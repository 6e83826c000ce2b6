package utils

import "fmt"

// ----------------------------------------------------------------------------
// Diagnostics

// Every stage of the pipeline (Jack compiler, VM translator, Assembler) is
// fatal-on-first-error: it stops, discards its partial output and returns an
// error describing what went wrong. No stage recovers or retries (see spec's
// Error Handling Design).

// Kind classifies a Diagnostic by which pipeline phase raised it.
type Kind uint8

const (
	LexError Kind = iota
	ParseError
	SemanticError
	TranslationError
	AssemblyError
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "lex error"
	case ParseError:
		return "parse error"
	case SemanticError:
		return "semantic error"
	case TranslationError:
		return "translation error"
	case AssemblyError:
		return "assembly error"
	default:
		return "error"
	}
}

// Diagnostic is the error type the Jack lexer, parser and type checker return
// on failure; the VM, Asm and Hack stages return plain errors. Module is the
// file/class/translation-unit name; Line is 1-based, 0 when the failure isn't
// addressable to a single line (e.g. a whole-program semantic check).
type Diagnostic struct {
	Kind   Kind
	Module string
	Line   int
	Msg    string
}

func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", d.Module, d.Line, d.Kind, d.Msg)
	}
	if d.Module != "" {
		return fmt.Sprintf("%s: %s: %s", d.Module, d.Kind, d.Msg)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
}

// Newf builds a Diagnostic with a formatted message.
func Newf(kind Kind, module string, line int, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Module: module, Line: line, Msg: fmt.Sprintf(format, args...)}
}
