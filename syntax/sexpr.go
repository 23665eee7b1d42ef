package syntax

import (
	"strconv"
	"strings"
)

// ToSExpr converts an AST node to s-expression string representation
func ToSExpr(node *Node) string {
	var sb strings.Builder
	writeSExpr(&sb, node)
	return sb.String()
}

func writeSExpr(sb *strings.Builder, node *Node) {
	if node == nil {
		sb.WriteString("()")
		return
	}
	children := func(nodes []*Node) {
		for _, c := range nodes {
			sb.WriteByte(' ')
			writeSExpr(sb, c)
		}
	}

	switch node.Kind {
	case NodeProgram:
		sb.WriteString("(program")
		children(node.Children)
		sb.WriteString(")")
	case NodeClass:
		sb.WriteString("(class " + strconv.Quote(node.String))
		if node.Parent != "" {
			sb.WriteString(" (is " + strconv.Quote(node.Parent) + ")")
		}
		children(node.Children)
		sb.WriteString(")")
	case NodeField:
		sb.WriteString("(field " + strconv.Quote(node.String) + " " + TypeToSExpr(node.Type) + ")")
	case NodeInit:
		sb.WriteString("(init ")
		writeParams(sb, node.Params)
		children(node.Children)
		sb.WriteString(")")
	case NodeFunc:
		sb.WriteString("(fn " + strconv.Quote(node.String))
		if node.Async {
			sb.WriteString(" async")
		}
		if node.Override {
			sb.WriteString(" override")
		}
		if tp := node.TypeParam; tp != nil {
			sb.WriteString(" (typeparam " + strconv.Quote(tp.Name))
			if tp.Bound != "" {
				sb.WriteString(" " + strconv.Quote(tp.Bound))
			}
			sb.WriteString(")")
		}
		sb.WriteByte(' ')
		writeParams(sb, node.Params)
		if node.Type != nil {
			sb.WriteString(" (returns " + TypeToSExpr(node.Type) + ")")
		}
		children(node.Children)
		sb.WriteString(")")
	case NodeBlock:
		sb.WriteString("(block")
		children(node.Children)
		sb.WriteString(")")
	case NodeLet:
		sb.WriteString("(let " + strconv.Quote(node.String))
		if node.Type != nil {
			sb.WriteString(" " + TypeToSExpr(node.Type))
		}
		children(node.Children)
		sb.WriteString(")")
	case NodeAssign:
		sb.WriteString("(assign " + strconv.Quote(node.Op))
		children(node.Children)
		sb.WriteString(")")
	case NodeReturn:
		sb.WriteString("(return")
		children(node.Children)
		sb.WriteString(")")
	case NodeIf:
		sb.WriteString("(if")
		children(node.Children)
		sb.WriteString(")")
	case NodeWhile:
		sb.WriteString("(while")
		children(node.Children)
		sb.WriteString(")")
	case NodeFor:
		sb.WriteString("(for " + strconv.Quote(node.String))
		children(node.Children)
		sb.WriteString(")")
	case NodeBreak:
		sb.WriteString("(break)")
	case NodeContinue:
		sb.WriteString("(continue)")
	case NodePass:
		sb.WriteString("(pass)")
	case NodeExprStmt:
		sb.WriteString("(expr")
		children(node.Children)
		sb.WriteString(")")
	case NodeIdent:
		sb.WriteString("(ident " + strconv.Quote(node.String) + ")")
	case NodeInteger:
		sb.WriteString("(integer " + strconv.FormatInt(node.Integer, 10) + ")")
	case NodeFloat:
		sb.WriteString("(float " + strconv.FormatFloat(node.Float, 'g', -1, 64) + ")")
	case NodeString:
		sb.WriteString("(string " + strconv.Quote(node.String) + ")")
	case NodeBool:
		sb.WriteString("(bool " + strconv.FormatBool(node.Bool) + ")")
	case NodeSelf:
		sb.WriteString("(self)")
	case NodeSuper:
		sb.WriteString("(super)")
	case NodeBinary:
		sb.WriteString("(binary " + strconv.Quote(node.Op))
		children(node.Children)
		sb.WriteString(")")
	case NodeUnary:
		sb.WriteString("(unary " + strconv.Quote(node.Op))
		children(node.Children)
		sb.WriteString(")")
	case NodeCall:
		sb.WriteString("(call")
		children(node.Children)
		sb.WriteString(")")
	case NodeMember:
		sb.WriteString("(member " + strconv.Quote(node.String))
		children(node.Children)
		sb.WriteString(")")
	case NodeIndex:
		sb.WriteString("(idx")
		children(node.Children)
		sb.WriteString(")")
	case NodeArray:
		sb.WriteString("(array")
		children(node.Children)
		sb.WriteString(")")
	case NodeAwait:
		sb.WriteString("(await")
		children(node.Children)
		sb.WriteString(")")
	case NodeCatch:
		sb.WriteString("(catch")
		if node.Op == "raise" {
			sb.WriteString(" raise")
		}
		children(node.Children)
		sb.WriteString(")")
	default:
		sb.WriteString("(unknown)")
	}
}

func writeParams(sb *strings.Builder, params []*Param) {
	sb.WriteString("(params")
	for _, p := range params {
		sb.WriteString(" (param " + strconv.Quote(p.Name) + " " + TypeToSExpr(p.Type) + ")")
	}
	sb.WriteString(")")
}

// TypeToSExpr renders a written type, e.g. (type "Array" (type "Integer")).
func TypeToSExpr(t *TypeExpr) string {
	if t == nil {
		return "()"
	}
	if t.Arg == nil {
		return "(type " + strconv.Quote(t.Name) + ")"
	}
	return "(type " + strconv.Quote(t.Name) + " " + TypeToSExpr(t.Arg) + ")"
}
