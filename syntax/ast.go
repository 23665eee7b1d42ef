package syntax

import "github.com/kestrel-lang/kestrel/diag"

// NodeKind represents different types of AST nodes
type NodeKind string

const (
	NodeProgram NodeKind = "NodeProgram"
	NodeClass   NodeKind = "NodeClass"
	NodeField   NodeKind = "NodeField"
	NodeInit    NodeKind = "NodeInit"
	NodeFunc    NodeKind = "NodeFunc"

	NodeBlock    NodeKind = "NodeBlock"
	NodeLet      NodeKind = "NodeLet"
	NodeAssign   NodeKind = "NodeAssign"
	NodeReturn   NodeKind = "NodeReturn"
	NodeIf       NodeKind = "NodeIf"
	NodeWhile    NodeKind = "NodeWhile"
	NodeFor      NodeKind = "NodeFor"
	NodeBreak    NodeKind = "NodeBreak"
	NodeContinue NodeKind = "NodeContinue"
	NodePass     NodeKind = "NodePass"
	NodeExprStmt NodeKind = "NodeExprStmt"

	NodeIdent   NodeKind = "NodeIdent"
	NodeInteger NodeKind = "NodeInteger"
	NodeFloat   NodeKind = "NodeFloat"
	NodeString  NodeKind = "NodeString"
	NodeBool    NodeKind = "NodeBool"
	NodeSelf    NodeKind = "NodeSelf"
	NodeSuper   NodeKind = "NodeSuper"
	NodeBinary  NodeKind = "NodeBinary"
	NodeUnary   NodeKind = "NodeUnary"
	NodeCall    NodeKind = "NodeCall"
	NodeMember  NodeKind = "NodeMember"
	NodeIndex   NodeKind = "NodeIndex"
	NodeArray   NodeKind = "NodeArray"
	NodeAwait   NodeKind = "NodeAwait"
	NodeCatch   NodeKind = "NodeCatch"
)

// Node is an AST node. Every node owns its children; the tree has no
// cycles. Analysis results are never stored on nodes: the analyzer keeps
// them in side tables keyed by *Node.
//
// Children layout by kind:
//
//	NodeProgram   declarations
//	NodeClass     members (NodeField, NodeInit, NodeFunc)
//	NodeInit      [body]
//	NodeFunc      [body]
//	NodeBlock     statements
//	NodeLet       [value]
//	NodeAssign    [target, value]
//	NodeReturn    [] or [value]
//	NodeIf        [cond, block, cond, block, ..., else-block?]
//	NodeWhile     [cond, block]
//	NodeFor       [iterable, block]
//	NodeExprStmt  [expr]
//	NodeBinary    [left, right]
//	NodeUnary     [operand]
//	NodeCall      [callee, args...]
//	NodeMember    [object]
//	NodeIndex     [object, index] or [object, row, col]
//	NodeArray     elements
//	NodeAwait     [call]
//	NodeCatch     [call] for `catch raise`, [call, fallback] otherwise
type Node struct {
	Kind NodeKind
	Span diag.Span

	// NodeIdent, NodeString, NodeMember, NodeLet, NodeFor and declarations:
	String string
	// NodeInteger:
	Integer int64
	// NodeFloat:
	Float float64
	// NodeBool:
	Bool bool
	// NodeBinary, NodeUnary, NodeAssign:
	Op string

	Children []*Node

	// Declared type of NodeLet and NodeField, return type of NodeFunc.
	Type *TypeExpr
	// NodeInit, NodeFunc:
	Params    []*Param
	TypeParam *TypeParam
	Async     bool
	Override  bool
	// NodeClass:
	Parent     string
	ParentSpan diag.Span
}

// Param is a typed function parameter.
type Param struct {
	Name string
	Type *TypeExpr
	Span diag.Span
}

// TypeExpr is a type as written in the source, e.g. Array<Integer>.
type TypeExpr struct {
	Name string
	Arg  *TypeExpr
	Span diag.Span
}

// TypeParam is the single type parameter of a generic function.
type TypeParam struct {
	Name  string
	Bound string
	Span  diag.Span
}

// Body returns the block of a function or constructor declaration.
func (n *Node) Body() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[len(n.Children)-1]
}

// Walk calls fn for n and every descendant in depth-first pre-order. If fn
// returns false the children of that node are skipped.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}
