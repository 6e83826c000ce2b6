package jack

import (
	"sort"

	"github.com/edmccard/nand2tetris/pkg/utils"
	"github.com/pkg/errors"
)

// ----------------------------------------------------------------------------
// Jack Type Checker

// The TypeChecker runs two sweeps over a 'jack.Program', entirely independent from the Lowerer
// and run ahead of it when '--typecheck' is requested:
//  1. a signature sweep, one pass over every class, that cross-checks any class sharing its name
//     with a 'jack.StandardLibraryABI' entry for conformance (same subroutine kind, same arity);
//  2. a body sweep that walks each subroutine's statements and expressions, populating the same
//     per-subroutine variable scope the Lowerer builds and resolving the type of every expression
//     along the way, surfacing undefined variables/types, call arity/kind mismatches and
//     return-type mismatches as they're found.
//
// It is read-only: it never mutates the AST it walks, only reports the first 'utils.Diagnostic' hit.
type TypeChecker struct {
	program       utils.OrderedMap[string, Class]
	scopes        ScopeTable
	currentClass  string
	currentReturn DataType
}

// Initializes and returns to the caller a brand new 'TypeChecker' struct.
// Requires the argument Program to be not nil nor empty.
func NewTypeChecker(p Program) TypeChecker {
	// Same determinism rationale as 'jack.NewLowerer': order classes by name so that the same
	// input always surfaces the same first diagnostic, regardless of Go's map iteration order.
	classes := []utils.MapEntry[string, Class]{}
	for _, class := range p {
		classes = append(classes, utils.MapEntry[string, Class]{Key: class.Name, Value: class})
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Key < classes[j].Key })

	return TypeChecker{program: utils.NewOrderedMapFromList(classes), scopes: ScopeTable{}}
}

// Triggers the type checking process: the signature sweep over every class, then the body sweep.
// Stops at (and returns) the first error found, same fatal-on-first-error contract as the Lowerer.
func (tc *TypeChecker) Check() error {
	if tc.program.Size() == 0 {
		return errors.New("the given 'program' is empty or nil")
	}

	for _, class := range tc.program.Entries() {
		if err := tc.checkConformance(class); err != nil {
			return errors.Wrapf(err, "error checking standard library conformance of class '%s'", class.Name)
		}
	}

	for _, class := range tc.program.Entries() {
		if err := tc.HandleClass(class); err != nil {
			return errors.Wrapf(err, "error type checking class '%s'", class.Name)
		}
	}

	return nil
}

// checkConformance cross-checks a class against the documented standard library ABI, when the
// class shares its name with one: every subroutine the ABI documents for that class must be
// present in the user's declaration, matching its kind (function/method/constructor) and its
// arity. Subroutines the class declares beyond the documented ABI are just user extensions and
// are left alone.
func (tc *TypeChecker) checkConformance(class Class) error {
	abiClass, isLibraryClass := StandardLibraryABI[class.Name]
	if !isLibraryClass {
		return nil
	}

	for _, abiSub := range abiClass.Subroutines.Entries() {
		sub, declared := class.Subroutines.Get(abiSub.Name)
		if !declared {
			return utils.Newf(utils.SemanticError, class.Name, 0,
				"'%s' must declare '%s' to conform to the standard library", class.Name, abiSub.Name)
		}

		if abiSub.Type != sub.Type {
			return utils.Newf(utils.SemanticError, class.Name, 0,
				"'%s' must be declared as a '%s' to conform to the standard library, found '%s'",
				sub.Name, abiSub.Type, sub.Type)
		}

		if abiSub.Arguments.Size() != sub.Arguments.Size() {
			return utils.Newf(utils.SemanticError, class.Name, 0,
				"'%s' takes %d argument(s) in the standard library, found %d",
				sub.Name, abiSub.Arguments.Size(), sub.Arguments.Size())
		}
	}

	return nil
}

// Specialized function to type check a 'jack.Class' node, its fields and its subroutines.
func (tc *TypeChecker) HandleClass(class Class) error {
	tc.scopes.PushClassScope(class.Name)
	tc.currentClass = class.Name
	defer func() { tc.scopes.PopClassScope(); tc.currentClass = "" }()

	for _, field := range class.Fields.Entries() {
		tc.scopes.RegisterVariable(field)
	}

	for _, subroutine := range class.Subroutines.Entries() {
		if err := tc.HandleSubroutine(subroutine); err != nil {
			return errors.Wrapf(err, "error type checking subroutine '%s'", subroutine.Name)
		}
	}

	return nil
}

// Specialized function to type check a 'jack.Subroutine' node: its arguments, its body and,
// for constructors, that the declared return type actually names the enclosing class.
func (tc *TypeChecker) HandleSubroutine(subroutine Subroutine) error {
	tc.scopes.PushSubRoutineScope(subroutine.Name)
	defer tc.scopes.PopSubroutineScope()

	if subroutine.Type == Constructor {
		if subroutine.Return.Main != Object || subroutine.Return.Subtype != tc.currentClass {
			return utils.Newf(utils.SemanticError, tc.currentClass, 0,
				"constructor '%s' must return '%s', found '%s'", subroutine.Name, tc.currentClass, describeType(subroutine.Return))
		}
	}

	if subroutine.Type == Method {
		tc.scopes.RegisterVariable(Variable{Name: "__obj", VarType: Parameter, DataType: DataType{Main: Object, Subtype: tc.currentClass}})
	}

	for _, arg := range subroutine.Arguments.Entries() {
		tc.scopes.RegisterVariable(arg)
	}

	previousReturn := tc.currentReturn
	tc.currentReturn = subroutine.Return
	defer func() { tc.currentReturn = previousReturn }()

	for _, stmt := range subroutine.Statements {
		if err := tc.HandleStatement(stmt); err != nil {
			return err
		}
	}

	if !endsInReturn(subroutine.Statements) {
		return utils.Newf(utils.SemanticError, tc.currentClass, 0,
			"subroutine '%s' must end with a 'return' statement", subroutine.Name)
	}

	return nil
}

// endsInReturn reports whether the last statement of a subroutine's top-level body is a
// 'return': every subroutine, void or not, must end with one.
func endsInReturn(stmts []Statement) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(ReturnStmt)
	return ok
}

// Generalized function to type check multiple statements types.
func (tc *TypeChecker) HandleStatement(stmt Statement) error {
	switch tStmt := stmt.(type) {
	case DoStmt:
		return tc.HandleDoStmt(tStmt)
	case VarStmt:
		return tc.HandleVarStmt(tStmt)
	case LetStmt:
		return tc.HandleLetStmt(tStmt)
	case IfStmt:
		return tc.HandleIfStmt(tStmt)
	case WhileStmt:
		return tc.HandleWhileStmt(tStmt)
	case ReturnStmt:
		return tc.HandleReturnStmt(tStmt)
	default:
		return utils.Newf(utils.SemanticError, tc.currentClass, 0, "unrecognized statement: %T", stmt)
	}
}

// Specialized function to type check a 'jack.DoStmt'; the call's return value (if any) is discarded.
func (tc *TypeChecker) HandleDoStmt(statement DoStmt) error {
	_, err := tc.resolveExprType(statement.FuncCall)
	return err
}

// Specialized function to type check a 'jack.VarStmt', registering each declared variable.
func (tc *TypeChecker) HandleVarStmt(statement VarStmt) error {
	for _, variable := range statement.Vars {
		if variable.DataType.Main == Object {
			if _, known := tc.resolveClass(variable.DataType.Subtype); !known {
				return utils.Newf(utils.SemanticError, tc.currentClass, 0, "undefined type '%s' for variable '%s'", variable.DataType.Subtype, variable.Name)
			}
		}
		tc.scopes.RegisterVariable(variable)
	}
	return nil
}

// Specialized function to type check a 'jack.LetStmt': resolves the LHS location and the RHS value.
func (tc *TypeChecker) HandleLetStmt(statement LetStmt) error {
	if _, err := tc.resolveExprType(statement.Rhs); err != nil {
		return err
	}

	switch lhs := statement.Lhs.(type) {
	case VarExpr:
		if _, err := tc.resolveExprType(lhs); err != nil {
			return err
		}
	case ArrayExpr:
		if _, err := tc.resolveExprType(lhs); err != nil {
			return err
		}
	default:
		return utils.Newf(utils.SemanticError, tc.currentClass, 0, "LHS of 'let' must be a variable or array element, got %T", statement.Lhs)
	}

	return nil
}

// Specialized function to type check a 'jack.IfStmt': condition plus both branches.
func (tc *TypeChecker) HandleIfStmt(statement IfStmt) error {
	if _, err := tc.resolveExprType(statement.Condition); err != nil {
		return err
	}
	for _, stmt := range statement.ThenBlock {
		if err := tc.HandleStatement(stmt); err != nil {
			return err
		}
	}
	for _, stmt := range statement.ElseBlock {
		if err := tc.HandleStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Specialized function to type check a 'jack.WhileStmt': condition plus the loop body.
func (tc *TypeChecker) HandleWhileStmt(statement WhileStmt) error {
	if _, err := tc.resolveExprType(statement.Condition); err != nil {
		return err
	}
	for _, stmt := range statement.Block {
		if err := tc.HandleStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Specialized function to type check a 'jack.ReturnStmt' against the enclosing subroutine's
// declared return type: a 'void' subroutine cannot return a value and vice versa.
func (tc *TypeChecker) HandleReturnStmt(statement ReturnStmt) error {
	isVoid := tc.currentReturn.Main == Void

	if statement.Expr == nil {
		if !isVoid {
			return utils.Newf(utils.SemanticError, tc.currentClass, 0,
				"subroutine declares a return type of '%s' but 'return' carries no value",
				describeType(tc.currentReturn))
		}
		return nil
	}

	if isVoid {
		return utils.Newf(utils.SemanticError, tc.currentClass, 0, "'void' subroutine cannot 'return' a value")
	}

	_, err := tc.resolveExprType(statement.Expr)
	return err
}

// Generalized function to resolve the 'jack.DataType' produced by an expression, surfacing any
// undefined variable/type, array-subscript-on-non-array, or call arity/kind mismatch encountered
// while recursing into it.
func (tc *TypeChecker) resolveExprType(expr Expression) (DataType, error) {
	switch e := expr.(type) {
	case LiteralExpr:
		return e.Type, nil

	case VarExpr:
		if e.Var == "this" {
			return DataType{Main: Object, Subtype: tc.currentClass}, nil
		}
		_, variable, err := tc.scopes.ResolveVariable(e.Var)
		if err != nil {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "%s", err)
		}
		return variable.DataType, nil

	case ArrayExpr:
		_, variable, err := tc.scopes.ResolveVariable(e.Var)
		if err != nil {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "%s", err)
		}
		if variable.DataType.Main != Object {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "cannot subscript non-array variable '%s'", e.Var)
		}
		if _, err := tc.resolveExprType(e.Index); err != nil {
			return DataType{}, err
		}
		return DataType{Main: Int}, nil

	case UnaryExpr:
		return tc.resolveExprType(e.Rhs)

	case BinaryExpr:
		if _, err := tc.resolveExprType(e.Lhs); err != nil {
			return DataType{}, err
		}
		if _, err := tc.resolveExprType(e.Rhs); err != nil {
			return DataType{}, err
		}
		switch e.Type {
		case LessThan, GreatThan, Equal, BoolAnd, BoolOr:
			return DataType{Main: Bool}, nil
		default:
			return DataType{Main: Int}, nil
		}

	case FuncCallExpr:
		return tc.checkCall(e)

	default:
		return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "unrecognized expression: %T", expr)
	}
}

// checkCall classifies a call expression into one of 4 shapes and validates it accordingly:
//   - unqualified call: resolved against the enclosing class, any subroutine kind allowed;
//   - 'var.method(...)' where 'var' resolves to a declared object variable: the target must be
//     a 'Method';
//   - 'Class.sub(...)' where 'Class' names a known class (user-defined or standard library): the
//     target must be a 'Function' or 'Constructor';
//   - anything else is an undefined call target.
//
// Every shape checks the argument count (arity) against the resolved subroutine's parameters.
func (tc *TypeChecker) checkCall(expr FuncCallExpr) (DataType, error) {
	for _, arg := range expr.Arguments {
		if _, err := tc.resolveExprType(arg); err != nil {
			return DataType{}, err
		}
	}

	if !expr.IsExtCall {
		_, sub, err := tc.lookupSubroutine(tc.currentClass, expr.FuncName)
		if err != nil {
			return DataType{}, err
		}
		if err := checkArity(sub, len(expr.Arguments)); err != nil {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "%s", err)
		}
		return sub.Return, nil
	}

	if _, variable, err := tc.scopes.ResolveVariable(expr.Var); err == nil {
		if variable.DataType.Main != Object {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0,
				"variable '%s' is not an object, cannot call '%s' on it", expr.Var, expr.FuncName)
		}

		className, sub, err := tc.lookupSubroutine(variable.DataType.Subtype, expr.FuncName)
		if err != nil {
			return DataType{}, err
		}
		if sub.Type != Method {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0,
				"'%s.%s' is not a method, cannot be called on an instance", className, expr.FuncName)
		}
		if err := checkArity(sub, len(expr.Arguments)); err != nil {
			return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "%s", err)
		}
		return sub.Return, nil
	}

	className, sub, err := tc.lookupSubroutine(expr.Var, expr.FuncName)
	if err != nil {
		return DataType{}, err
	}
	if sub.Type != Function && sub.Type != Constructor {
		return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0,
			"'%s.%s' is a method, requires an instance to be called on", className, expr.FuncName)
	}
	if err := checkArity(sub, len(expr.Arguments)); err != nil {
		return DataType{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "%s", err)
	}
	return sub.Return, nil
}

// lookupSubroutine resolves 'subName' declared on 'className', looking first at classes defined
// in the program being checked and then, for classes the program doesn't define itself, at the
// documented standard library ABI.
func (tc *TypeChecker) lookupSubroutine(className, subName string) (string, Subroutine, error) {
	class, known := tc.resolveClass(className)
	if !known {
		return "", Subroutine{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "undefined class '%s'", className)
	}

	sub, declared := class.Subroutines.Get(subName)
	if !declared {
		return "", Subroutine{}, utils.Newf(utils.SemanticError, tc.currentClass, 0, "undefined subroutine '%s.%s'", className, subName)
	}
	return className, sub, nil
}

// resolveClass looks a class name up first in the program under check and then in the standard
// library ABI, so that user code can freely reference both.
func (tc *TypeChecker) resolveClass(className string) (Class, bool) {
	if class, exists := tc.program.Get(className); exists {
		return class, true
	}
	if class, exists := StandardLibraryABI[className]; exists {
		return class, true
	}
	return Class{}, false
}

func checkArity(sub Subroutine, nArgs int) error {
	if sub.Arguments.Size() != nArgs {
		return errors.Errorf("subroutine '%s' expects %d argument(s), got %d", sub.Name, sub.Arguments.Size(), nArgs)
	}
	return nil
}

func describeType(dtype DataType) string {
	if dtype.Main == Object {
		return dtype.Subtype
	}
	return string(dtype.Main)
}
