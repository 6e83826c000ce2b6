package vm

import (
	"fmt"

	"github.com/edmccard/nand2tetris/pkg/asm"
	"github.com/pkg/errors"
)

// Location resolves the Floating-segment base register symbol used to address
// 'argument', 'local', 'this' and 'that' (each is a base pointer plus offset).
var floatingBase = map[SegmentType]string{
	Argument: "ARG",
	Local:    "LCL",
	This:     "THIS",
	That:     "THAT",
}

// ----------------------------------------------------------------------------
// Vm Lowerer

// The Lowerer takes a 'vm.Program' and produces its 'asm.Program' counterpart.
//
// Translation is stateless per-command except for three pieces of running state kept
// across the whole Program: a per-module comparison label counter, a per-function return
// label counter and the name of the function currently being lowered (needed to scope
// 'label'/'goto'/'if-goto' to their enclosing function, per the Hack VM convention).
type Lowerer struct {
	program Program

	module      string // Name of the module/class currently being lowered
	function    string // Name of the function currently being lowered
	nCompare    uint   // Per-module comparison label counter (reset every module)
	nReturn     uint   // Per-function return label counter (reset every function)
}

// Initializes and returns to the caller a brand new 'Lowerer' struct.
// Requires the argument Program to be not nil nor empty.
func NewLowerer(p Program) Lowerer {
	return Lowerer{program: p}
}

// Triggers the lowering process, module by module in an unspecified (map) order since
// each module is an independent translation unit and Hack VM code never references
// another module's labels (only its exported functions, resolved by name at call sites).
func (l *Lowerer) Lowerer() (asm.Program, error) {
	program := asm.Program{}

	if len(l.program) == 0 {
		return nil, errors.Errorf("the given 'program' is empty")
	}

	for modName, module := range l.program {
		l.module, l.nCompare = modName, 0

		for _, operation := range module {
			instructions, err := l.HandleOperation(operation)
			if err != nil {
				return nil, err
			}
			program = append(program, instructions...)
		}
	}

	return program, nil
}

// Dispatches a single 'vm.Operation' to its specialized Handle* method based on its
// dynamic type, appending its Asm translation to the running Program.
func (l *Lowerer) HandleOperation(op Operation) ([]asm.Instruction, error) {
	switch tOp := op.(type) {
	case MemoryOp:
		return l.HandleMemoryOp(tOp)
	case ArithmeticOp:
		return l.HandleArithmeticOp(tOp)
	case LabelDecl:
		return l.HandleLabelDecl(tOp)
	case GotoOp:
		return l.HandleGotoOp(tOp)
	case FuncDecl:
		return l.HandleFuncDecl(tOp)
	case FuncCallOp:
		return l.HandleFuncCallOp(tOp)
	case ReturnOp:
		return l.HandleReturnOp(tOp)
	default:
		return nil, errors.Errorf("unrecognized operation '%T'", op)
	}
}

// Specialized function to convert a 'vm.MemoryOp' to its Asm counterpart.
//
// Segment names fall in one of three shapes: Floating (argument, local, this, that;
// base pointer plus offset), Fixed (static, pointer, temp; direct address) and Const
// (constant; immediate, push-only).
func (l *Lowerer) HandleMemoryOp(op MemoryOp) ([]asm.Instruction, error) {
	if op.Operation == Push {
		return l.pushSegment(op.Segment, op.Offset)
	}
	if op.Operation == Pop {
		return l.popSegment(op.Segment, op.Offset)
	}
	return nil, errors.Errorf("unrecognized OperationType '%s'", op.Operation)
}

func (l *Lowerer) pushSegment(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	load, err := l.loadSegmentValue(segment, offset)
	if err != nil {
		return nil, err
	}

	return append(load, pushD()...), nil
}

// loadSegmentValue emits instructions that leave the segment's value in the D register.
func (l *Lowerer) loadSegmentValue(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	if base, ok := floatingBase[segment]; ok {
		return []asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "A", Comp: "D+A"},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	}

	switch segment {
	case Constant:
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "D", Comp: "A"},
		}, nil
	case Static:
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprintf("%s.%d", l.module, offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	case Pointer:
		if offset > 1 {
			return nil, errors.Errorf("invalid 'pointer' offset, got %d", offset)
		}
		return []asm.Instruction{
			asm.AInstruction{Location: pointerAlias(offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	case Temp:
		if offset > 7 {
			return nil, errors.Errorf("invalid 'temp' offset, got %d", offset)
		}
		return []asm.Instruction{
			asm.AInstruction{Location: fmt.Sprint(5 + offset)},
			asm.CInstruction{Dest: "D", Comp: "M"},
		}, nil
	}

	return nil, errors.Errorf("unrecognized SegmentType '%s'", segment)
}

func (l *Lowerer) popSegment(segment SegmentType, offset uint16) ([]asm.Instruction, error) {
	if segment == Constant {
		return nil, errors.Errorf("cannot 'pop' into the 'constant' segment")
	}

	if base, ok := floatingBase[segment]; ok {
		// No spare register available: compute the target address first and stash it
		// in R13, then pop the stack's top into D and store it at the stashed address.
		return append([]asm.Instruction{
			asm.AInstruction{Location: base},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: fmt.Sprint(offset)},
			asm.CInstruction{Dest: "D", Comp: "D+A"},
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}, append(popD(), []asm.Instruction{
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "M", Comp: "D"},
		}...)...), nil
	}

	var target string
	switch segment {
	case Static:
		target = fmt.Sprintf("%s.%d", l.module, offset)
	case Pointer:
		if offset > 1 {
			return nil, errors.Errorf("invalid 'pointer' offset, got %d", offset)
		}
		target = pointerAlias(offset)
	case Temp:
		if offset > 7 {
			return nil, errors.Errorf("invalid 'temp' offset, got %d", offset)
		}
		target = fmt.Sprint(5 + offset)
	default:
		return nil, errors.Errorf("unrecognized SegmentType '%s'", segment)
	}

	return append(popD(), []asm.Instruction{
		asm.AInstruction{Location: target},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}...), nil
}

func pointerAlias(offset uint16) string {
	if offset == 0 {
		return "THIS"
	}
	return "THAT"
}

// pushD emits the shared "*SP = D; SP++" sequence.
func pushD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M+1"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}
}

// popD emits the shared "SP--; D = *SP" sequence.
func popD() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
	}
}

// Specialized function to convert a 'vm.ArithmeticOp' to its Asm counterpart.
//
// Binary operations pop the stack's top into D and combine it with the new top in
// place; unary operations (neg, not) only touch the stack's current top. Comparisons
// (eq, lt, gt) need a module-unique label to branch on the result of the subtraction.
func (l *Lowerer) HandleArithmeticOp(op ArithmeticOp) ([]asm.Instruction, error) {
	switch op.Operation {
	case Neg:
		return append(topAddr(), asm.CInstruction{Dest: "M", Comp: "-M"}), nil
	case Not:
		return append(topAddr(), asm.CInstruction{Dest: "M", Comp: "!M"}), nil
	case Add:
		return l.binaryOp("M+D"), nil
	case Sub:
		return l.binaryOp("M-D"), nil
	case And:
		return l.binaryOp("M&D"), nil
	case Or:
		return l.binaryOp("M|D"), nil
	case Eq:
		return l.comparison("eq", "JEQ"), nil
	case Gt:
		return l.comparison("gt", "JGT"), nil
	case Lt:
		return l.comparison("lt", "JLT"), nil
	default:
		return nil, errors.Errorf("unrecognized ArithOpType '%s'", op.Operation)
	}
}

// topAddr emits "@SP; A=M-1", leaving A pointed at the stack's current top.
func topAddr() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
	}
}

func (l *Lowerer) binaryOp(comp string) []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "M", Comp: comp},
	}
}

func (l *Lowerer) comparison(op, jump string) []asm.Instruction {
	label := fmt.Sprintf("%s$%s.%d", l.module, op, l.nCompare)
	l.nCompare++

	return []asm.Instruction{
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "M-1"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.CInstruction{Dest: "A", Comp: "A-1"},
		asm.CInstruction{Dest: "D", Comp: "M-D"},
		asm.CInstruction{Dest: "M", Comp: "-1"},
		asm.AInstruction{Location: label},
		asm.CInstruction{Comp: "D", Jump: jump},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "A", Comp: "M-1"},
		asm.CInstruction{Dest: "M", Comp: "0"},
		asm.LabelDecl{Name: label},
	}
}

// Specialized function to convert a 'vm.LabelDecl' to its Asm counterpart. Labels are
// scoped to the function they appear in, so two functions may reuse the same name.
func (l *Lowerer) HandleLabelDecl(op LabelDecl) ([]asm.Instruction, error) {
	return []asm.Instruction{asm.LabelDecl{Name: l.scopedLabel(op.Name)}}, nil
}

// Specialized function to convert a 'vm.GotoOp' to its Asm counterpart.
func (l *Lowerer) HandleGotoOp(op GotoOp) ([]asm.Instruction, error) {
	label := l.scopedLabel(op.Label)

	if op.Jump == Unconditional {
		return []asm.Instruction{
			asm.AInstruction{Location: label},
			asm.CInstruction{Comp: "0", Jump: "JMP"},
		}, nil
	}
	if op.Jump == Conditional {
		return append(popD(), []asm.Instruction{
			asm.AInstruction{Location: label},
			asm.CInstruction{Comp: "D", Jump: "JNE"},
		}...), nil
	}

	return nil, errors.Errorf("unrecognized JumpType '%s'", op.Jump)
}

func (l *Lowerer) scopedLabel(name string) string {
	if l.function == "" {
		return name
	}
	return fmt.Sprintf("%s$%s", l.function, name)
}

// Specialized function to convert a 'vm.FuncDecl' to its Asm counterpart. Emits a
// label at the function's entry point followed by 'NLocal' zero-initialized pushes.
func (l *Lowerer) HandleFuncDecl(op FuncDecl) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, errors.Errorf("unable to lower function declaration with empty name")
	}

	l.function, l.nReturn = op.Name, 0

	instructions := []asm.Instruction{asm.LabelDecl{Name: op.Name}}
	for i := uint8(0); i < op.NLocal; i++ {
		instructions = append(instructions,
			asm.AInstruction{Location: "0"},
			asm.CInstruction{Dest: "D", Comp: "A"},
		)
		instructions = append(instructions, pushD()...)
	}

	return instructions, nil
}

// Specialized function to convert a 'vm.FuncCallOp' to its Asm counterpart. Saves the
// caller's frame (return address, LCL, ARG, THIS, THAT) on the stack, repositions ARG
// and LCL for the callee and jumps to it; the return-address label is function-scoped
// and counted independently from comparison labels so repeated calls don't collide.
func (l *Lowerer) HandleFuncCallOp(op FuncCallOp) ([]asm.Instruction, error) {
	if op.Name == "" {
		return nil, errors.Errorf("unable to lower function call with empty name")
	}

	retLabel := fmt.Sprintf("%s$ret.%d", l.function, l.nReturn)
	l.nReturn++

	instructions := []asm.Instruction{
		asm.AInstruction{Location: retLabel},
		asm.CInstruction{Dest: "D", Comp: "A"},
	}
	instructions = append(instructions, pushD()...)

	for _, reg := range []string{"LCL", "ARG", "THIS", "THAT"} {
		instructions = append(instructions,
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "D", Comp: "M"},
		)
		instructions = append(instructions, pushD()...)
	}

	instructions = append(instructions,
		// ARG = SP - n - 5
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: fmt.Sprint(uint16(op.NArgs) + 5)},
		asm.CInstruction{Dest: "D", Comp: "D-A"},
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// LCL = SP
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// goto f
		asm.AInstruction{Location: op.Name},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
		// return address label
		asm.LabelDecl{Name: retLabel},
	)

	return instructions, nil
}

// Specialized function to convert a 'vm.ReturnOp' to its Asm counterpart. Walks the
// saved frame backwards from LCL (stashed in R13) to restore THAT, THIS, ARG and LCL,
// stashes the return address in R14 before the frame is overwritten by the return value,
// then repositions SP and jumps back to the caller.
func (l *Lowerer) HandleReturnOp(op ReturnOp) ([]asm.Instruction, error) {
	instructions := []asm.Instruction{
		// R13 = frame = LCL
		asm.AInstruction{Location: "LCL"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R13"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// R14 = retAddr = *(frame - 5)
		asm.AInstruction{Location: "5"},
		asm.CInstruction{Dest: "A", Comp: "D-A"},
		asm.CInstruction{Dest: "D", Comp: "M"},
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	}

	// *ARG = pop()
	instructions = append(instructions, popD()...)
	instructions = append(instructions,
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		// SP = ARG + 1
		asm.AInstruction{Location: "ARG"},
		asm.CInstruction{Dest: "D", Comp: "M+1"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
	)

	// THAT, THIS, ARG, LCL restored from *(frame-1..-4), walking R13 down each time.
	for _, reg := range []string{"THAT", "THIS", "ARG", "LCL"} {
		instructions = append(instructions,
			asm.AInstruction{Location: "R13"},
			asm.CInstruction{Dest: "M", Comp: "M-1"},
			asm.CInstruction{Dest: "A", Comp: "M"},
			asm.CInstruction{Dest: "D", Comp: "M"},
			asm.AInstruction{Location: reg},
			asm.CInstruction{Dest: "M", Comp: "D"},
		)
	}

	instructions = append(instructions,
		asm.AInstruction{Location: "R14"},
		asm.CInstruction{Dest: "A", Comp: "M"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	)

	return instructions, nil
}

// Bootstrap returns the Asm preamble that initializes the Stack Pointer and jumps to
// 'Sys.init', prepended to the combined output whenever multiple modules are linked.
func Bootstrap() []asm.Instruction {
	return []asm.Instruction{
		asm.AInstruction{Location: "261"},
		asm.CInstruction{Dest: "D", Comp: "A"},
		asm.AInstruction{Location: "SP"},
		asm.CInstruction{Dest: "M", Comp: "D"},
		asm.AInstruction{Location: "Sys.init"},
		asm.CInstruction{Comp: "0", Jump: "JMP"},
	}
}
