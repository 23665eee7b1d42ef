package sema

import (
	"fmt"

	"github.com/kestrel-lang/kestrel/abi"
	"github.com/kestrel-lang/kestrel/types"
)

// Intrinsic identifies builtins that codegen expands inline instead of
// calling a host function.
type Intrinsic int

const (
	NotIntrinsic Intrinsic = iota
	IntrinsicPrint
	IntrinsicStr
	IntrinsicLen
	IntrinsicPush
	IntrinsicRows
	IntrinsicCols
	IntrinsicMatrix
	IntrinsicRange
	IntrinsicYield
)

// Builtin is a predeclared function or a method of a builtin type.
type Builtin struct {
	Name string
	// Receiver is the owning type name of builtin methods: String, Array,
	// Matrix, Database or Request.
	Receiver string
	Params   []types.Type
	Result   types.Type
	// Import is the host function called with the receiver and the
	// arguments, "" for intrinsics.
	Import     string
	Fallible   bool
	ServerOnly bool
	Intrinsic  Intrinsic
}

// Opaque host handle classes.
const (
	DatabaseClass = "Database"
	RequestClass  = "Request"
)

var (
	tInt     = types.Integer
	tNum     = types.Number
	tStr     = types.String
	tBool    = types.Boolean
	tVoid    = types.Void
	tDB      = types.Class(DatabaseClass)
	tReq     = types.Class(RequestClass)
	tHandler = types.Func([]types.Type{tReq}, tVoid)
)

func host(receiver, name, imp string, result types.Type, params ...types.Type) *Builtin {
	entry, ok := abi.Lookup(imp)
	if !ok {
		panic(fmt.Sprintf("builtin %s: no host function %s", name, imp))
	}
	return &Builtin{
		Name:       name,
		Receiver:   receiver,
		Params:     params,
		Result:     result,
		Import:     imp,
		Fallible:   entry.Fallible,
		ServerOnly: entry.ServerOnly,
	}
}

func intrinsic(receiver, name string, in Intrinsic) *Builtin {
	return &Builtin{Name: name, Receiver: receiver, Intrinsic: in}
}

var builtinFuncs = index(
	intrinsic("", "print", IntrinsicPrint),
	intrinsic("", "str", IntrinsicStr),
	intrinsic("", "matrix", IntrinsicMatrix),
	intrinsic("", "range", IntrinsicRange),
	intrinsic("", "yield", IntrinsicYield),

	host("", "sqrt", "_math_sqrt", tNum, tNum),
	host("", "pow", "_math_pow", tNum, tNum, tNum),
	host("", "floor", "_math_floor", tNum, tNum),
	host("", "ceil", "_math_ceil", tNum, tNum),
	host("", "abs", "_math_abs", tNum, tNum),
	host("", "sin", "_math_sin", tNum, tNum),
	host("", "cos", "_math_cos", tNum, tNum),
	host("", "random", "_math_random", tNum),
	host("", "readLine", "_read_line", tStr),

	host("", "readFile", "_file_read", tStr, tStr),
	host("", "writeFile", "_file_write", tVoid, tStr, tStr),
	host("", "fileExists", "_file_exists", tBool, tStr),
	host("", "deleteFile", "_file_delete", tVoid, tStr),

	host("", "httpGet", "_http_get", tStr, tStr),
	host("", "httpPost", "_http_post", tStr, tStr, tStr),

	host("", "sha256", "_sha256", tStr, tStr),
	host("", "uuid", "_uuid", tStr),
	host("", "hashPassword", "_hash_password", tStr, tStr),
	host("", "verifyPassword", "_verify_password", tBool, tStr, tStr),

	host("", "openDatabase", "_db_open", tDB, tStr),

	host("", "listen", "_http_listen", tVoid, tInt),
	host("", "route", "_http_route", tVoid, tStr, tStr, tHandler),
	host("", "routeProtected", "_http_route_protected", tVoid, tStr, tStr, tHandler, tStr),
)

var builtinMethods = map[string]map[string]*Builtin{
	"String": index(
		intrinsic("String", "len", IntrinsicLen),
		host("String", "upper", "_str_upper", tStr),
		host("String", "lower", "_str_lower", tStr),
		host("String", "trim", "_str_trim", tStr),
		host("String", "contains", "_str_contains", tBool, tStr),
		host("String", "indexOf", "_str_index_of", tInt, tStr),
		host("String", "replace", "_str_replace", tStr, tStr, tStr),
		host("String", "substring", "_str_substring", tStr, tInt, tInt),
		host("String", "toInt", "_str_to_int", tInt),
		host("String", "toNumber", "_str_to_float", tNum),
	),
	"Array": index(
		intrinsic("Array", "len", IntrinsicLen),
		intrinsic("Array", "push", IntrinsicPush),
	),
	"Matrix": index(
		intrinsic("Matrix", "rows", IntrinsicRows),
		intrinsic("Matrix", "cols", IntrinsicCols),
	),
	DatabaseClass: index(
		host(DatabaseClass, "exec", "_db_exec", tInt, tStr),
		host(DatabaseClass, "query", "_db_query", tStr, tStr),
		host(DatabaseClass, "close", "_db_close", tVoid),
	),
	RequestClass: index(
		host(RequestClass, "method", "_req_method", tStr),
		host(RequestClass, "path", "_req_path", tStr),
		host(RequestClass, "body", "_req_body", tStr),
		host(RequestClass, "param", "_req_param", tStr, tStr),
		host(RequestClass, "header", "_req_header", tStr, tStr),
		host(RequestClass, "user", "_auth_user", tStr),
		host(RequestClass, "login", "_auth_login", tVoid, tStr),
		host(RequestClass, "logout", "_auth_logout", tVoid),
		host(RequestClass, "status", "_res_status", tVoid, tInt),
		host(RequestClass, "send", "_res_send", tVoid, tStr),
		host(RequestClass, "json", "_res_json", tVoid, tStr),
		host(RequestClass, "setHeader", "_res_header", tVoid, tStr, tStr),
	),
}

func index(bs ...*Builtin) map[string]*Builtin {
	m := make(map[string]*Builtin, len(bs))
	for _, b := range bs {
		m[b.Name] = b
	}
	return m
}

// Builtins returns every builtin function and method. The order is not
// specified.
func Builtins() []*Builtin {
	var out []*Builtin
	for _, b := range builtinFuncs {
		out = append(out, b)
	}
	for _, ms := range builtinMethods {
		for _, b := range ms {
			out = append(out, b)
		}
	}
	return out
}

// receiverName returns the builtin-method table key of t.
func receiverName(t types.Type) string {
	switch t.Kind {
	case types.KindString:
		return "String"
	case types.KindArray:
		return "Array"
	case types.KindMatrix:
		return "Matrix"
	case types.KindClass:
		return t.Name
	}
	return ""
}

// printImport returns the console function printing values of t.
func printImport(t types.Type) string {
	switch t.Kind {
	case types.KindString:
		return "_print_str"
	case types.KindInteger:
		return "_print_int"
	case types.KindNumber:
		return "_print_float"
	case types.KindBoolean:
		return "_print_bool"
	}
	return ""
}

// strImport returns the conversion function for str(t). Strings and
// booleans convert inline.
func strImport(t types.Type) string {
	switch t.Kind {
	case types.KindInteger:
		return "_int_to_str"
	case types.KindNumber:
		return "_float_to_str"
	}
	return ""
}
