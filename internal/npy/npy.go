// Package npy reads and writes the numpy .npy container used to ship
// pre-tokenized model inputs (input_ids.npy, attention_mask.npy).
//
// Only integer arrays are supported. Decoded elements are always widened to
// int64 regardless of the on-disk element width.
package npy

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Magic is the fixed marker at the start of every .npy file.
const Magic = "\x93NUMPY"

var (
	// ErrFormat is returned when the container header is malformed.
	ErrFormat = errors.New("npy: invalid format")
	// ErrTruncatedData is returned when fewer element bytes remain than the shape requires.
	ErrTruncatedData = errors.New("npy: truncated data")
)

// ElementType is the fixed-width integer type stored in the container.
type ElementType int

const (
	// Int64 is a little-endian 8-byte signed integer ('<i8').
	Int64 ElementType = iota
	// Int32 is a little-endian 4-byte signed integer ('<i4').
	Int32
)

// Size returns the width of one element in bytes.
func (t ElementType) Size() int {
	if t == Int32 {
		return 4
	}
	return 8
}

// Descr returns the numpy dtype descriptor for the element type.
func (t ElementType) Descr() string {
	if t == Int32 {
		return "<i4"
	}
	return "<i8"
}

func (t ElementType) String() string {
	if t == Int32 {
		return "int32"
	}
	return "int64"
}

// Array is a decoded row-major integer array.
type Array struct {
	Shape   []int64
	Data    []int64
	Version [2]byte
}

// Len returns the number of elements implied by the shape.
func (a *Array) Len() int64 {
	n, _ := product(a.Shape)
	return n
}

type options struct {
	elem ElementType
}

// Option configures decoding.
type Option func(*options)

// WithElementType sets the element type expected in the container. Defaults to Int64.
func WithElementType(t ElementType) Option {
	return func(o *options) {
		o.elem = t
	}
}

// ReadArray opens path and decodes a single array from it.
func ReadArray(path string, opts ...Option) (*Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	arr, err := Decode(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arr, nil
}

// Decode reads one array from r.
func Decode(r io.Reader, opts ...Option) (*Array, error) {
	o := options{elem: Int64}
	for _, opt := range opts {
		opt(&o)
	}

	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrFormat, err)
	}
	if string(magic) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, magic)
	}

	var version [2]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", ErrFormat, err)
	}

	headerLen, err := readHeaderLen(r, version[0])
	if err != nil {
		return nil, err
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header shorter than %d bytes: %v", ErrFormat, headerLen, err)
	}

	h, err := parseHeader(string(header))
	if err != nil {
		return nil, err
	}
	if h.descr != "" && h.descr != o.elem.Descr() {
		return nil, fmt.Errorf("%w: dtype %q, expected %q", ErrFormat, h.descr, o.elem.Descr())
	}
	if h.fortranOrder {
		return nil, fmt.Errorf("%w: fortran order is not supported", ErrFormat)
	}

	n, ok := product(h.shape)
	size := int64(o.elem.Size())
	if !ok || n > math.MaxInt64/size {
		return nil, fmt.Errorf("%w: shape %v is too large", ErrFormat, h.shape)
	}

	// The payload grows with what the reader actually yields, so a lying
	// header cannot force a huge allocation.
	need := n * size
	var payload bytes.Buffer
	if read, err := io.CopyN(&payload, r, need); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: need %d bytes for shape %v, got %d", ErrTruncatedData, need, h.shape, read)
		}
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	buf := payload.Bytes()

	data := make([]int64, n)
	for i := range data {
		chunk := buf[int64(i)*size : int64(i+1)*size]
		if o.elem == Int32 {
			data[i] = int64(int32(binary.LittleEndian.Uint32(chunk)))
		} else {
			data[i] = int64(binary.LittleEndian.Uint64(chunk))
		}
	}

	return &Array{Shape: h.shape, Data: data, Version: version}, nil
}

func readHeaderLen(r io.Reader, major byte) (int, error) {
	switch major {
	case 1:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("%w: reading header length: %v", ErrFormat, err)
		}
		return int(binary.LittleEndian.Uint16(b[:])), nil
	case 2, 3:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, fmt.Errorf("%w: reading header length: %v", ErrFormat, err)
		}
		return int(binary.LittleEndian.Uint32(b[:])), nil
	default:
		return 0, fmt.Errorf("%w: unsupported version %d", ErrFormat, major)
	}
}

type header struct {
	descr        string
	fortranOrder bool
	shape        []int64
}

// parseHeader extracts the fields we care about from the python-literal dict
// numpy writes, e.g. {'descr': '<i8', 'fortran_order': False, 'shape': (1, 12), }.
// A bare tuple such as "(1, 12)" is also accepted.
func parseHeader(s string) (header, error) {
	var h header

	if i := strings.Index(s, "'descr':"); i >= 0 {
		rest := strings.TrimSpace(s[i+len("'descr':"):])
		if len(rest) > 0 && (rest[0] == '\'' || rest[0] == '"') {
			if end := strings.IndexByte(rest[1:], rest[0]); end >= 0 {
				h.descr = rest[1 : end+1]
			}
		}
	}
	if i := strings.Index(s, "'fortran_order':"); i >= 0 {
		rest := strings.TrimSpace(s[i+len("'fortran_order':"):])
		h.fortranOrder = strings.HasPrefix(rest, "True")
	}

	tuple := s
	if i := strings.Index(s, "'shape':"); i >= 0 {
		tuple = s[i:]
	}
	open := strings.IndexByte(tuple, '(')
	if open < 0 {
		return h, fmt.Errorf("%w: no shape tuple in header %q", ErrFormat, s)
	}
	closing := strings.IndexByte(tuple[open:], ')')
	if closing < 0 {
		return h, fmt.Errorf("%w: unterminated shape tuple in header %q", ErrFormat, s)
	}

	shape, err := ParseShape(tuple[open+1 : open+closing])
	if err != nil {
		return h, err
	}
	h.shape = shape
	return h, nil
}

// ParseShape parses the inside of a shape tuple, e.g. "1, 12" or "5,".
func ParseShape(s string) ([]int64, error) {
	var shape []int64
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		// numpy on some platforms writes long literals as 12L
		tok = strings.TrimSuffix(tok, "L")
		dim, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad dimension %q", ErrFormat, tok)
		}
		if dim < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrFormat, dim)
		}
		shape = append(shape, dim)
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: shape has no dimensions", ErrFormat)
	}
	return shape, nil
}

// FormatShape renders a shape the way numpy does: "(1, 12)" or "(5,)".
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Write encodes data as a version 1.0 little-endian int64 container.
func Write(w io.Writer, data []int64, shape []int64) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: shape has no dimensions", ErrFormat)
	}
	if n, ok := product(shape); !ok || n != int64(len(data)) {
		return fmt.Errorf("%w: shape %v does not hold %d elements", ErrFormat, shape, len(data))
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", Int64.Descr(), FormatShape(shape))
	// magic + version + u16 length + dict + '\n', padded to a multiple of 64
	prefix := len(Magic) + 2 + 2
	total := prefix + len(dict) + 1
	if rem := total % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"

	var buf bytes.Buffer
	buf.WriteString(Magic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(dict))); err != nil {
		return err
	}
	buf.WriteString(dict)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile writes data to path, replacing any existing file.
func WriteFile(path string, data []int64, shape []int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, data, shape); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// product returns the element count of shape. ok is false when it does not
// fit in an int64.
func product(shape []int64) (n int64, ok bool) {
	for _, d := range shape {
		if d == 0 {
			return 0, true
		}
	}
	n = 1
	for _, d := range shape {
		if n > math.MaxInt64/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}
