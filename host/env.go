package host

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/kestrel-lang/kestrel/abi"
)

// functions returns the implementation of every supported host function.
func (h *Host) functions() map[string]api.GoModuleFunc {
	return map[string]api.GoModuleFunc{
		"_print_str":   h.printStr,
		"_print_int":   h.printInt,
		"_print_float": h.printFloat,
		"_print_bool":  h.printBool,
		"_read_line":   h.readLine,

		"_math_sqrt":   unary(math.Sqrt),
		"_math_pow":    h.pow,
		"_math_floor":  unary(math.Floor),
		"_math_ceil":   unary(math.Ceil),
		"_math_abs":    unary(math.Abs),
		"_math_sin":    unary(math.Sin),
		"_math_cos":    unary(math.Cos),
		"_math_random": h.random,

		"_int_to_str":    h.intToStr,
		"_float_to_str":  h.floatToStr,
		"_str_upper":     h.mapString(strings.ToUpper),
		"_str_lower":     h.mapString(strings.ToLower),
		"_str_trim":      h.mapString(strings.TrimSpace),
		"_str_contains":  h.strContains,
		"_str_index_of":  h.strIndexOf,
		"_str_replace":   h.strReplace,
		"_str_substring": h.strSubstring,
		"_str_to_int":    h.strToInt,
		"_str_to_float":  h.strToFloat,

		"_alloc":      h.alloc,
		"_heap_reset": h.heapReset,

		"_db_open":  h.dbOpen,
		"_db_exec":  h.dbExec,
		"_db_query": h.dbQuery,
		"_db_close": func(context.Context, api.Module, []uint64) {},

		"_file_read":   h.fileRead,
		"_file_write":  h.fileWrite,
		"_file_exists": h.fileExists,
		"_file_delete": h.fileDelete,

		"_http_get":  h.httpGet,
		"_http_post": h.httpPost,

		"_sha256":          h.sha256,
		"_uuid":            h.uuid,
		"_hash_password":   h.hashPassword,
		"_verify_password": h.verifyPassword,

		"_last_error": h.lastError,
	}
}

// console

func (h *Host) printStr(_ context.Context, m api.Module, stack []uint64) {
	fmt.Fprintln(h.cfg.Stdout, readString(m, stack[0], stack[1]))
}

func (h *Host) printInt(_ context.Context, _ api.Module, stack []uint64) {
	fmt.Fprintln(h.cfg.Stdout, int64(stack[0]))
}

func (h *Host) printFloat(_ context.Context, _ api.Module, stack []uint64) {
	fmt.Fprintln(h.cfg.Stdout, FormatNumber(api.DecodeF64(stack[0])))
}

func (h *Host) printBool(_ context.Context, _ api.Module, stack []uint64) {
	fmt.Fprintln(h.cfg.Stdout, uint32(stack[0]) != 0)
}

func (h *Host) readLine(_ context.Context, m api.Module, stack []uint64) {
	line, err := h.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		panic(fmt.Errorf("read stdin: %w", err))
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	stack[0] = h.newString(m, line)
}

// FormatNumber formats a Number the way print and str do: integral values
// without a fraction.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// math

func unary(f func(float64) float64) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeF64(f(api.DecodeF64(stack[0])))
	}
}

func (h *Host) pow(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeF64(math.Pow(api.DecodeF64(stack[0]), api.DecodeF64(stack[1])))
}

func (h *Host) random(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeF64(h.rand.Float64())
}

// string

func (h *Host) intToStr(_ context.Context, m api.Module, stack []uint64) {
	stack[0] = h.newString(m, strconv.FormatInt(int64(stack[0]), 10))
}

func (h *Host) floatToStr(_ context.Context, m api.Module, stack []uint64) {
	stack[0] = h.newString(m, FormatNumber(api.DecodeF64(stack[0])))
}

func (h *Host) mapString(f func(string) string) api.GoModuleFunc {
	return func(_ context.Context, m api.Module, stack []uint64) {
		stack[0] = h.newString(m, f(readString(m, stack[0], stack[1])))
	}
}

func (h *Host) strContains(_ context.Context, m api.Module, stack []uint64) {
	s, sub := readString(m, stack[0], stack[1]), readString(m, stack[2], stack[3])
	stack[0] = boolValue(strings.Contains(s, sub))
}

func (h *Host) strIndexOf(_ context.Context, m api.Module, stack []uint64) {
	s, sub := readString(m, stack[0], stack[1]), readString(m, stack[2], stack[3])
	stack[0] = api.EncodeI64(int64(strings.Index(s, sub)))
}

func (h *Host) strReplace(_ context.Context, m api.Module, stack []uint64) {
	s := readString(m, stack[0], stack[1])
	old, repl := readString(m, stack[2], stack[3]), readString(m, stack[4], stack[5])
	stack[0] = h.newString(m, strings.ReplaceAll(s, old, repl))
}

// strSubstring returns the bytes in [start, end).
func (h *Host) strSubstring(_ context.Context, m api.Module, stack []uint64) {
	s := readString(m, stack[0], stack[1])
	start, end := int64(stack[2]), int64(stack[3])
	if start < 0 || end < start || end > int64(len(s)) {
		h.fail("substring", fmt.Errorf("range [%d, %d) out of bounds for length %d", start, end, len(s)))
		stack[0] = 0
		return
	}
	stack[0] = h.newString(m, s[start:end])
}

func (h *Host) strToInt(_ context.Context, m api.Module, stack []uint64) {
	n, err := strconv.ParseInt(readString(m, stack[0], stack[1]), 10, 64)
	if err != nil {
		h.fail("toInt", err)
		n = 0
	}
	stack[0] = api.EncodeI64(n)
}

func (h *Host) strToFloat(_ context.Context, m api.Module, stack []uint64) {
	f, err := strconv.ParseFloat(readString(m, stack[0], stack[1]), 64)
	if err != nil {
		h.fail("toNumber", err)
		f = 0
	}
	stack[0] = api.EncodeF64(f)
}

// memory

func (h *Host) alloc(_ context.Context, _ api.Module, stack []uint64) {
	ptr, err := h.heap.Alloc(uint32(stack[0]), uint32(stack[1]))
	if err != nil {
		panic(fmt.Errorf("_alloc(%d, %d): %w", uint32(stack[0]), uint32(stack[1]), err))
	}
	stack[0] = uint64(ptr)
}

func (h *Host) heapReset(context.Context, api.Module, []uint64) {
	h.heap.Reset()
}

// database

var errNoDatabase = errors.New("no database driver")

func (h *Host) dbOpen(_ context.Context, m api.Module, stack []uint64) {
	h.fail("openDatabase", fmt.Errorf("%s: %w", readString(m, stack[0], stack[1]), errNoDatabase))
	stack[0] = 0
}

func (h *Host) dbExec(_ context.Context, _ api.Module, stack []uint64) {
	h.fail("exec", errNoDatabase)
	stack[0] = 0
}

func (h *Host) dbQuery(_ context.Context, _ api.Module, stack []uint64) {
	h.fail("query", errNoDatabase)
	stack[0] = 0
}

// file

var errNoFiles = errors.New("file access denied")

// path resolves name inside the configured directory.
func (h *Host) path(name string) (string, error) {
	if h.cfg.Dir == "" {
		return "", errNoFiles
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("%s: path escapes the file root", name)
	}
	return filepath.Join(h.cfg.Dir, name), nil
}

func (h *Host) fileRead(_ context.Context, m api.Module, stack []uint64) {
	path, err := h.path(readString(m, stack[0], stack[1]))
	var data []byte
	if err == nil {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		h.fail("readFile", err)
		stack[0] = 0
		return
	}
	stack[0] = h.newString(m, string(data))
}

func (h *Host) fileWrite(_ context.Context, m api.Module, stack []uint64) {
	path, err := h.path(readString(m, stack[0], stack[1]))
	if err == nil {
		err = os.WriteFile(path, []byte(readString(m, stack[2], stack[3])), 0o644)
	}
	if err != nil {
		h.fail("writeFile", err)
	}
}

func (h *Host) fileExists(_ context.Context, m api.Module, stack []uint64) {
	path, err := h.path(readString(m, stack[0], stack[1]))
	if err == nil {
		_, err = os.Stat(path)
	}
	stack[0] = boolValue(err == nil)
}

func (h *Host) fileDelete(_ context.Context, m api.Module, stack []uint64) {
	path, err := h.path(readString(m, stack[0], stack[1]))
	if err == nil {
		err = os.Remove(path)
	}
	if err != nil {
		h.fail("deleteFile", err)
	}
}

// http client

var errNoNetwork = errors.New("network access denied")

func (h *Host) httpGet(ctx context.Context, m api.Module, stack []uint64) {
	url := readString(m, stack[0], stack[1])
	stack[0] = h.httpDo(ctx, m, "httpGet", http.MethodGet, url, "")
}

func (h *Host) httpPost(ctx context.Context, m api.Module, stack []uint64) {
	url, body := readString(m, stack[0], stack[1]), readString(m, stack[2], stack[3])
	stack[0] = h.httpDo(ctx, m, "httpPost", http.MethodPost, url, body)
}

func (h *Host) httpDo(ctx context.Context, m api.Module, name, method, url, body string) uint64 {
	if h.cfg.HTTPClient == nil {
		h.fail(name, errNoNetwork)
		return 0
	}
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		h.fail(name, err)
		return 0
	}
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		h.fail(name, err)
		return 0
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("%s %s: %s", method, url, resp.Status)
	}
	if err != nil {
		h.fail(name, err)
		return 0
	}
	return h.newString(m, string(data))
}

// crypto

func (h *Host) sha256(_ context.Context, m api.Module, stack []uint64) {
	sum := sha256.Sum256([]byte(readString(m, stack[0], stack[1])))
	stack[0] = h.newString(m, hex.EncodeToString(sum[:]))
}

func (h *Host) uuid(_ context.Context, m api.Module, stack []uint64) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Errorf("uuid: %w", err))
	}
	b[6] = b[6]&0x0f | 0x40
	b[8] = b[8]&0x3f | 0x80
	s := hex.EncodeToString(b[:])
	stack[0] = h.newString(m, s[:8]+"-"+s[8:12]+"-"+s[12:16]+"-"+s[16:20]+"-"+s[20:])
}

// Password hashes are "salt$digest", both hex, with a random 16-byte salt.
func (h *Host) hashPassword(_ context.Context, m api.Module, stack []uint64) {
	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		panic(fmt.Errorf("hashPassword: %w", err))
	}
	stack[0] = h.newString(m, saltedHash(hex.EncodeToString(salt[:]), readString(m, stack[0], stack[1])))
}

func (h *Host) verifyPassword(_ context.Context, m api.Module, stack []uint64) {
	password, hash := readString(m, stack[0], stack[1]), readString(m, stack[2], stack[3])
	salt, _, ok := strings.Cut(hash, "$")
	stack[0] = boolValue(ok && subtle.ConstantTimeCompare([]byte(saltedHash(salt, password)), []byte(hash)) == 1)
}

func saltedHash(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return salt + "$" + hex.EncodeToString(sum[:])
}

// error

func (h *Host) lastError(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = boolValue(h.lastErr)
	h.lastErr = false
}

// values

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// readString reads a (pointer, length) string argument.
func readString(m api.Module, ptr, n uint64) string {
	b, ok := m.Memory().Read(uint32(ptr), uint32(n))
	if !ok {
		panic(fmt.Errorf("string of %d bytes at %d: %w", uint32(n), uint32(ptr), abi.ErrOutOfBounds))
	}
	return string(b)
}

// newString allocates s on the module heap and returns its address.
func (h *Host) newString(m api.Module, s string) uint64 {
	enc := abi.EncodeString(s)
	ptr, err := h.heap.Alloc(uint32(len(enc)), abi.PointerAlign)
	if err != nil {
		panic(fmt.Errorf("allocate string: %w", err))
	}
	if !m.Memory().Write(ptr, enc) {
		panic(fmt.Errorf("write string at %d: %w", ptr, abi.ErrOutOfBounds))
	}
	return uint64(ptr)
}
