package wasm

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32     ValType = 0x7F
	I64     ValType = 0x7E
	F32     ValType = 0x7D
	F64     ValType = 0x7C
	FuncRef ValType = 0x70
)

func (v ValType) String() string {
	switch v {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case FuncRef:
		return "funcref"
	default:
		return "?"
	}
}

// BlockVoid is the empty block type.
const BlockVoid byte = 0x40

// WASM Opcode Constants
const (
	UNREACHABLE   = 0x00
	NOP           = 0x01
	BLOCK         = 0x02
	LOOP          = 0x03
	IF            = 0x04
	ELSE          = 0x05
	END           = 0x0B
	BR            = 0x0C
	BR_IF         = 0x0D
	BR_TABLE      = 0x0E
	RETURN        = 0x0F
	CALL          = 0x10
	CALL_INDIRECT = 0x11
	DROP          = 0x1A
	SELECT        = 0x1B

	LOCAL_GET  = 0x20
	LOCAL_SET  = 0x21
	LOCAL_TEE  = 0x22
	GLOBAL_GET = 0x23
	GLOBAL_SET = 0x24

	I32_LOAD    = 0x28
	I64_LOAD    = 0x29
	F64_LOAD    = 0x2B
	I32_LOAD8_U = 0x2D
	I32_STORE   = 0x36
	I64_STORE   = 0x37
	F64_STORE   = 0x39
	I32_STORE8  = 0x3A
	MEMORY_SIZE = 0x3F
	MEMORY_GROW = 0x40

	I32_CONST = 0x41
	I64_CONST = 0x42
	F64_CONST = 0x44

	I32_EQZ  = 0x45
	I32_EQ   = 0x46
	I32_NE   = 0x47
	I32_LT_S = 0x48
	I32_LT_U = 0x49
	I32_GT_S = 0x4A
	I32_GT_U = 0x4B
	I32_LE_S = 0x4C
	I32_LE_U = 0x4D
	I32_GE_S = 0x4E
	I32_GE_U = 0x4F

	I64_EQZ  = 0x50
	I64_EQ   = 0x51
	I64_NE   = 0x52
	I64_LT_S = 0x53
	I64_LT_U = 0x54
	I64_GT_S = 0x55
	I64_GT_U = 0x56
	I64_LE_S = 0x57
	I64_GE_S = 0x59
	I64_GE_U = 0x5A

	F64_EQ = 0x61
	F64_NE = 0x62
	F64_LT = 0x63
	F64_GT = 0x64
	F64_LE = 0x65
	F64_GE = 0x66

	I32_ADD   = 0x6A
	I32_SUB   = 0x6B
	I32_MUL   = 0x6C
	I32_DIV_U = 0x6E
	I32_AND   = 0x71
	I32_OR    = 0x72
	I32_SHL   = 0x74
	I32_SHR_U = 0x76

	I64_ADD   = 0x7C
	I64_SUB   = 0x7D
	I64_MUL   = 0x7E
	I64_DIV_S = 0x7F
	I64_DIV_U = 0x80
	I64_REM_S = 0x81
	I64_AND   = 0x83
	I64_SHL   = 0x86
	I64_SHR_U = 0x88

	F64_NEG  = 0x9A
	F64_SQRT = 0x9F
	F64_ADD  = 0xA0
	F64_SUB  = 0xA1
	F64_MUL  = 0xA2
	F64_DIV  = 0xA3

	I32_WRAP_I64     = 0xA7
	I64_EXTEND_I32_S = 0xAC
	I64_EXTEND_I32_U = 0xAD
	I64_TRUNC_F64_S  = 0xB0
	F64_CONVERT_I64  = 0xB9

	// Prefix of the bulk-memory instructions.
	MISC_PREFIX = 0xFC
	MEMORY_COPY = 0x0A
	MEMORY_FILL = 0x0B
)

// Section ids.
const (
	SectionCustom   = 0x00
	SectionType     = 0x01
	SectionImport   = 0x02
	SectionFunction = 0x03
	SectionTable    = 0x04
	SectionMemory   = 0x05
	SectionGlobal   = 0x06
	SectionExport   = 0x07
	SectionElement  = 0x09
	SectionCode     = 0x0A
	SectionData     = 0x0B
)

// ExportKind is the kind byte of an export or import entry.
type ExportKind byte

const (
	ExportFunc   ExportKind = 0x00
	ExportTable  ExportKind = 0x01
	ExportMemory ExportKind = 0x02
	ExportGlobal ExportKind = 0x03
)
