package jack_test

import (
	"strings"
	"testing"

	"github.com/edmccard/nand2tetris/pkg/jack"
)

func parse(t *testing.T, source string) jack.Class {
	t.Helper()
	parser := jack.NewParser(strings.NewReader(source))
	class, err := parser.Parse()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return class
}

func TestParser(t *testing.T) {
	t.Run("Empty class", func(t *testing.T) {
		class := parse(t, `class Empty { }`)
		if class.Name != "Empty" {
			t.Errorf("expected class name 'Empty', got %q", class.Name)
		}
		if class.Fields.Size() != 0 || class.Subroutines.Size() != 0 {
			t.Errorf("expected no fields or subroutines, got %d fields and %d subroutines", class.Fields.Size(), class.Subroutines.Size())
		}
	})

	t.Run("Class var declarations", func(t *testing.T) {
		class := parse(t, `
			class Point {
				field int x, y;
				static boolean initialized;
			}`)

		x, ok := class.Fields.Get("x")
		if !ok || x.VarType != jack.Field || x.DataType.Main != jack.Int {
			t.Errorf("expected field 'x' of type int, got %+v (found=%v)", x, ok)
		}
		y, ok := class.Fields.Get("y")
		if !ok || y.VarType != jack.Field || y.DataType.Main != jack.Int {
			t.Errorf("expected field 'y' of type int, got %+v (found=%v)", y, ok)
		}
		initialized, ok := class.Fields.Get("initialized")
		if !ok || initialized.VarType != jack.Static || initialized.DataType.Main != jack.Bool {
			t.Errorf("expected static 'initialized' of type boolean, got %+v (found=%v)", initialized, ok)
		}
	})

	t.Run("Subroutine declaration with parameters", func(t *testing.T) {
		class := parse(t, `
			class Point {
				function Point new(int ax, int ay) {
					return this;
				}
			}`)

		sub, ok := class.Subroutines.Get("new")
		if !ok {
			t.Fatal("expected subroutine 'new' to be declared")
		}
		if sub.Type != jack.Function || sub.Return.Main != jack.Object || sub.Return.Subtype != "Point" {
			t.Errorf("expected function returning 'Point', got %+v", sub)
		}
		if sub.Arguments.Size() != 2 {
			t.Fatalf("expected 2 arguments, got %d", sub.Arguments.Size())
		}
		ax, _ := sub.Arguments.Get("ax")
		if ax.DataType.Main != jack.Int {
			t.Errorf("expected argument 'ax' of type int, got %+v", ax)
		}
	})

	t.Run("Var, let, if, while and do statements", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					var int i;
					let i = 0;
					while (i < 10) {
						if (i = 5) {
							do Output.printInt(i);
						} else {
							let i = i + 1;
						}
					}
					return;
				}
			}`)

		sub, _ := class.Subroutines.Get("run")
		if len(sub.Statements) != 4 {
			t.Fatalf("expected 4 top level statements, got %d", len(sub.Statements))
		}

		if _, ok := sub.Statements[0].(jack.VarStmt); !ok {
			t.Errorf("expected first statement to be a VarStmt, got %T", sub.Statements[0])
		}
		if _, ok := sub.Statements[1].(jack.LetStmt); !ok {
			t.Errorf("expected second statement to be a LetStmt, got %T", sub.Statements[1])
		}

		whileStmt, ok := sub.Statements[2].(jack.WhileStmt)
		if !ok {
			t.Fatalf("expected third statement to be a WhileStmt, got %T", sub.Statements[2])
		}
		if len(whileStmt.Block) != 1 {
			t.Fatalf("expected 1 statement in the while body, got %d", len(whileStmt.Block))
		}

		ifStmt, ok := whileStmt.Block[0].(jack.IfStmt)
		if !ok {
			t.Fatalf("expected the while body to hold an IfStmt, got %T", whileStmt.Block[0])
		}
		if len(ifStmt.ThenBlock) != 1 || len(ifStmt.ElseBlock) != 1 {
			t.Errorf("expected 1 statement in each if branch, got %d then and %d else", len(ifStmt.ThenBlock), len(ifStmt.ElseBlock))
		}
		if _, ok := ifStmt.ThenBlock[0].(jack.DoStmt); !ok {
			t.Errorf("expected the then branch to hold a DoStmt, got %T", ifStmt.ThenBlock[0])
		}
	})

	t.Run("Expressions fold left to right with no precedence", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					let x = 1 + 2 * 3;
					return;
				}
			}`)

		sub, _ := class.Subroutines.Get("run")
		letStmt := sub.Statements[0].(jack.LetStmt)
		outer, ok := letStmt.Rhs.(jack.BinaryExpr)
		if !ok {
			t.Fatalf("expected the expression to be a BinaryExpr, got %T", letStmt.Rhs)
		}
		if outer.Type != jack.Multiply {
			t.Errorf("expected the outermost operator to be the last one seen ('*'), got %s", outer.Type)
		}
		inner, ok := outer.Lhs.(jack.BinaryExpr)
		if !ok {
			t.Fatalf("expected the LHS to itself be a BinaryExpr ('1 + 2'), got %T", outer.Lhs)
		}
		if inner.Type != jack.Plus {
			t.Errorf("expected the inner operator to be '+', got %s", inner.Type)
		}
	})

	t.Run("Array subscript and qualified/unqualified calls", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					var Array a;
					let a[0] = Main.compute(1, 2);
					do helper();
					return;
				}
			}`)

		sub, _ := class.Subroutines.Get("run")

		letStmt := sub.Statements[1].(jack.LetStmt)
		arr, ok := letStmt.Lhs.(jack.ArrayExpr)
		if !ok || arr.Var != "a" {
			t.Fatalf("expected LHS to be an ArrayExpr on 'a', got %+v", letStmt.Lhs)
		}

		call, ok := letStmt.Rhs.(jack.FuncCallExpr)
		if !ok || !call.IsExtCall || call.Var != "Main" || call.FuncName != "compute" || len(call.Arguments) != 2 {
			t.Errorf("expected a qualified call 'Main.compute(1, 2)', got %+v", letStmt.Rhs)
		}

		doStmt := sub.Statements[2].(jack.DoStmt)
		if doStmt.FuncCall.IsExtCall || doStmt.FuncCall.FuncName != "helper" {
			t.Errorf("expected an unqualified call to 'helper', got %+v", doStmt.FuncCall)
		}
	})

	t.Run("Parenthesized expressions and unary operators", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					let x = -(1 + 2) * ~flag;
					return;
				}
			}`)

		sub, _ := class.Subroutines.Get("run")
		letStmt := sub.Statements[0].(jack.LetStmt)
		outer := letStmt.Rhs.(jack.BinaryExpr)
		if outer.Type != jack.Multiply {
			t.Fatalf("expected outermost operator to be '*', got %s", outer.Type)
		}

		neg, ok := outer.Lhs.(jack.UnaryExpr)
		if !ok || neg.Type != jack.Negation {
			t.Fatalf("expected LHS to be a Negation UnaryExpr, got %+v", outer.Lhs)
		}
		if _, ok := neg.Rhs.(jack.BinaryExpr); !ok {
			t.Errorf("expected the negated term to be the parenthesized '1 + 2', got %T", neg.Rhs)
		}

		not, ok := outer.Rhs.(jack.UnaryExpr)
		if !ok || not.Type != jack.BoolNot {
			t.Fatalf("expected RHS to be a BoolNot UnaryExpr, got %+v", outer.Rhs)
		}
	})

	t.Run("Malformed input fails", func(t *testing.T) {
		parser := jack.NewParser(strings.NewReader(`class Foo { `))
		if _, err := parser.Parse(); err == nil {
			t.Fatal("expected an error for an unterminated class body")
		}
	})
}
