package jack_test

import (
	"strings"
	"testing"
)

func TestAnalyzer(t *testing.T) {
	contains := func(t *testing.T, xml, substr string) {
		t.Helper()
		if !strings.Contains(xml, substr) {
			t.Errorf("expected rendered XML to contain %q, got:\n%s", substr, xml)
		}
	}

	t.Run("Renders class, field and subroutine tags", func(t *testing.T) {
		class := parse(t, `
			class Point {
				field int x, y;
				constructor Point new(int ax, int ay) {
					let x = ax;
					let y = ay;
					return this;
				}
			}`)

		xml := class.String()
		contains(t, xml, "<class>")
		contains(t, xml, "<keyword> class </keyword>")
		contains(t, xml, "<identifier> Point </identifier>")
		contains(t, xml, "<classVarDec>")
		contains(t, xml, "<keyword> field </keyword>")
		contains(t, xml, "<subroutineDec>")
		contains(t, xml, "<keyword> constructor </keyword>")
		contains(t, xml, "<parameterList>")
		contains(t, xml, "<subroutineBody>")
		contains(t, xml, "<letStatement>")
		contains(t, xml, "<keyword> this </keyword>")
		contains(t, xml, "</class>")
	})

	t.Run("Escapes reserved XML characters in literals", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					do Output.printString("a & b < c > d");
					return;
				}
			}`)

		xml := class.String()
		contains(t, xml, "a &amp; b &lt; c &gt; d")
	})

	t.Run("Un-flattens a binary expression chain into term/operator pairs", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					let x = 1 + 2 * 3;
					return;
				}
			}`)

		xml := class.String()
		contains(t, xml, "<expression>")
		contains(t, xml, "<symbol> + </symbol>")
		contains(t, xml, "<symbol> * </symbol>")
		contains(t, xml, "<integerConstant> 1 </integerConstant>")
		contains(t, xml, "<integerConstant> 2 </integerConstant>")
		contains(t, xml, "<integerConstant> 3 </integerConstant>")
	})

	t.Run("Renders qualified calls with expressionList", func(t *testing.T) {
		class := parse(t, `
			class Main {
				function void run() {
					do Main.compute(1, 2);
					return;
				}
			}`)

		xml := class.String()
		contains(t, xml, "<doStatement>")
		contains(t, xml, "<identifier> Main </identifier>")
		contains(t, xml, "<symbol> . </symbol>")
		contains(t, xml, "<identifier> compute </identifier>")
		contains(t, xml, "<expressionList>")
	})

	t.Run("Properly nests opening and closing tags", func(t *testing.T) {
		class := parse(t, `class Empty { }`)
		xml := class.String()
		lines := strings.Split(strings.TrimRight(xml, "\n"), "\n")
		if len(lines) < 2 {
			t.Fatalf("expected at least 2 lines of output, got %d", len(lines))
		}
		if strings.TrimSpace(lines[0]) != "<class>" {
			t.Errorf("expected first line to be '<class>', got %q", lines[0])
		}
		if strings.TrimSpace(lines[len(lines)-1]) != "</class>" {
			t.Errorf("expected last line to be '</class>', got %q", lines[len(lines)-1])
		}
	})
}
