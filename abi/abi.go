// Package abi publishes the host-function table and the memory contract
// that compiled modules and their hosts share.
package abi

import (
	"github.com/kestrel-lang/kestrel/wasm"
)

// Import module names.
const (
	ModuleEnv           = "env"
	ModuleMemoryRuntime = "memory_runtime"
)

// Category groups host functions by the runtime that implements them.
type Category string

const (
	Console  Category = "console"
	Math     Category = "math"
	String   Category = "string"
	Memory   Category = "memory"
	Database Category = "database"
	File     Category = "file"
	HTTP     Category = "http"
	Crypto   Category = "crypto"
	Error    Category = "error"
	Server   Category = "server"
)

// Import is one published host function.
//
// String arguments occupy two parameters (pointer to the UTF-8 bytes,
// byte length). String results are a single pointer to a length-prefixed
// string. Booleans are i32 0/1, integers i64, floats f64 and handles i32.
type Import struct {
	Module   string
	Name     string
	Params   []wasm.ValType
	Results  []wasm.ValType
	Category Category
	// Fallible functions report failure through _last_error.
	Fallible bool
	// ServerOnly functions may only be imported by server-target modules.
	ServerOnly bool
}

// Type returns the wasm function type of the import.
func (imp Import) Type() wasm.FuncType {
	return wasm.FuncType{Params: imp.Params, Results: imp.Results}
}

var (
	i32 = wasm.I32
	i64 = wasm.I64
	f64 = wasm.F64
)

func vt(v ...wasm.ValType) []wasm.ValType { return v }

// str is the parameter pair of one string argument.
var str = []wasm.ValType{wasm.I32, wasm.I32}

func concat(parts ...[]wasm.ValType) []wasm.ValType {
	var out []wasm.ValType
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Imports is the published table. Order is significant: modules import the
// entries they use in this order.
var Imports = []Import{
	// console
	{Module: ModuleEnv, Name: "_print_str", Params: str, Category: Console},
	{Module: ModuleEnv, Name: "_print_int", Params: vt(i64), Category: Console},
	{Module: ModuleEnv, Name: "_print_float", Params: vt(f64), Category: Console},
	{Module: ModuleEnv, Name: "_print_bool", Params: vt(i32), Category: Console},
	{Module: ModuleEnv, Name: "_read_line", Results: vt(i32), Category: Console},

	// math
	{Module: ModuleEnv, Name: "_math_sqrt", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_pow", Params: vt(f64, f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_floor", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_ceil", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_abs", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_sin", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_cos", Params: vt(f64), Results: vt(f64), Category: Math},
	{Module: ModuleEnv, Name: "_math_random", Results: vt(f64), Category: Math},

	// string
	{Module: ModuleEnv, Name: "_int_to_str", Params: vt(i64), Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_float_to_str", Params: vt(f64), Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_upper", Params: str, Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_lower", Params: str, Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_trim", Params: str, Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_contains", Params: concat(str, str), Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_index_of", Params: concat(str, str), Results: vt(i64), Category: String},
	{Module: ModuleEnv, Name: "_str_replace", Params: concat(str, str, str), Results: vt(i32), Category: String},
	{Module: ModuleEnv, Name: "_str_substring", Params: concat(str, vt(i64, i64)), Results: vt(i32), Category: String, Fallible: true},
	{Module: ModuleEnv, Name: "_str_to_int", Params: str, Results: vt(i64), Category: String, Fallible: true},
	{Module: ModuleEnv, Name: "_str_to_float", Params: str, Results: vt(f64), Category: String, Fallible: true},

	// memory
	{Module: ModuleMemoryRuntime, Name: "_alloc", Params: vt(i32, i32), Results: vt(i32), Category: Memory},
	{Module: ModuleMemoryRuntime, Name: "_heap_reset", Category: Memory},

	// database
	{Module: ModuleEnv, Name: "_db_open", Params: str, Results: vt(i32), Category: Database, Fallible: true},
	{Module: ModuleEnv, Name: "_db_exec", Params: concat(vt(i32), str), Results: vt(i64), Category: Database, Fallible: true},
	{Module: ModuleEnv, Name: "_db_query", Params: concat(vt(i32), str), Results: vt(i32), Category: Database, Fallible: true},
	{Module: ModuleEnv, Name: "_db_close", Params: vt(i32), Category: Database},

	// file
	{Module: ModuleEnv, Name: "_file_read", Params: str, Results: vt(i32), Category: File, Fallible: true},
	{Module: ModuleEnv, Name: "_file_write", Params: concat(str, str), Category: File, Fallible: true},
	{Module: ModuleEnv, Name: "_file_exists", Params: str, Results: vt(i32), Category: File},
	{Module: ModuleEnv, Name: "_file_delete", Params: str, Category: File, Fallible: true},

	// http client
	{Module: ModuleEnv, Name: "_http_get", Params: str, Results: vt(i32), Category: HTTP, Fallible: true},
	{Module: ModuleEnv, Name: "_http_post", Params: concat(str, str), Results: vt(i32), Category: HTTP, Fallible: true},

	// crypto
	{Module: ModuleEnv, Name: "_sha256", Params: str, Results: vt(i32), Category: Crypto},
	{Module: ModuleEnv, Name: "_uuid", Results: vt(i32), Category: Crypto},
	{Module: ModuleEnv, Name: "_hash_password", Params: str, Results: vt(i32), Category: Crypto},
	{Module: ModuleEnv, Name: "_verify_password", Params: concat(str, str), Results: vt(i32), Category: Crypto},

	// error
	{Module: ModuleEnv, Name: "_last_error", Results: vt(i32), Category: Error},

	// server
	{Module: ModuleEnv, Name: "_http_listen", Params: vt(i64), Category: Server, Fallible: true, ServerOnly: true},
	{Module: ModuleEnv, Name: "_http_route", Params: concat(str, str, vt(i32)), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_http_route_protected", Params: concat(str, str, vt(i32), str), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_req_method", Params: vt(i32), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_req_path", Params: vt(i32), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_req_body", Params: vt(i32), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_req_param", Params: concat(vt(i32), str), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_req_header", Params: concat(vt(i32), str), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_auth_user", Params: vt(i32), Results: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_auth_login", Params: concat(vt(i32), str), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_auth_logout", Params: vt(i32), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_res_status", Params: vt(i32, i64), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_res_send", Params: concat(vt(i32), str), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_res_json", Params: concat(vt(i32), str), Category: Server, ServerOnly: true},
	{Module: ModuleEnv, Name: "_res_header", Params: concat(vt(i32), str, str), Category: Server, ServerOnly: true},
}

var byName = func() map[string]int {
	m := make(map[string]int, len(Imports))
	for i, imp := range Imports {
		m[imp.Name] = i
	}
	return m
}()

// Lookup returns the published entry for name.
func Lookup(name string) (Import, bool) {
	i, ok := byName[name]
	if !ok {
		return Import{}, false
	}
	return Imports[i], true
}

// Order returns the position of name in the table, or -1.
func Order(name string) int {
	i, ok := byName[name]
	if !ok {
		return -1
	}
	return i
}

// ByCategory returns the entries of one category in table order.
func ByCategory(c Category) []Import {
	var out []Import
	for _, imp := range Imports {
		if imp.Category == c {
			out = append(out, imp)
		}
	}
	return out
}
