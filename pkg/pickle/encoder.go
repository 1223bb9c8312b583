// Package pickle reads and writes Python pickle snapshot files.
//
// A snapshot is a dict mapping short string keys to lists of floats. The
// encoder emits a fixed protocol 2 opcode stream that CPython's pickle.load
// reads without any Go-side schema. Decoding goes through og-rek and accepts
// whatever CPython itself writes for the same data.
package pickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/gwillem/armrec/pkg/capture"
)

// Opcodes.
const (
	opProto          = 0x80
	opEmptyDict      = '}'
	opMark           = '('
	opShortBinString = 'U'
	opEmptyList      = ']'
	opBinFloat       = 'G'
	opAppend         = 'a'
	opSetItems       = 'u'
	opStop           = '.'

	protocolVersion = 2
)

// MaxStringLen is the longest string SHORT_BINSTRING can carry.
const MaxStringLen = 255

// ErrStringTooLong is returned for keys that do not fit SHORT_BINSTRING.
var ErrStringTooLong = errors.New("string longer than 255 bytes")

// IOError reports a failure writing or reading a snapshot file.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Encoder writes pickle opcodes to an underlying writer. The first error is
// sticky: later writes are skipped and Err reports it.
type Encoder struct {
	w   io.Writer
	err error
	buf [9]byte
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Err returns the first error encountered.
func (e *Encoder) Err() error {
	return e.err
}

func (e *Encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *Encoder) op(b byte) {
	e.buf[0] = b
	e.write(e.buf[:1])
}

// WriteHeader emits PROTO 2.
func (e *Encoder) WriteHeader() { e.write([]byte{opProto, protocolVersion}) }

func (e *Encoder) WriteMark()      { e.op(opMark) }
func (e *Encoder) WriteEmptyList() { e.op(opEmptyList) }
func (e *Encoder) WriteAppend()    { e.op(opAppend) }
func (e *Encoder) WriteEmptyDict() { e.op(opEmptyDict) }
func (e *Encoder) WriteSetItems()  { e.op(opSetItems) }
func (e *Encoder) WriteStop()      { e.op(opStop) }

// WriteString emits SHORT_BINSTRING.
func (e *Encoder) WriteString(s string) {
	if e.err != nil {
		return
	}
	if len(s) > MaxStringLen {
		e.err = fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
		return
	}
	e.write([]byte{opShortBinString, byte(len(s))})
	e.write([]byte(s))
}

// WriteFloat emits BINFLOAT with v widened to float64.
func (e *Encoder) WriteFloat(v float32) {
	e.buf[0] = opBinFloat
	binary.BigEndian.PutUint64(e.buf[1:], math.Float64bits(float64(v)))
	e.write(e.buf[:9])
}

// WriteFloatList emits an empty list followed by one append per value.
func (e *Encoder) WriteFloatList(values []float32) {
	e.WriteEmptyList()
	for _, v := range values {
		e.WriteFloat(v)
		e.WriteAppend()
	}
}

// WriteFloatListDict emits a dict of float lists with keys in ascending order.
// An empty dict is a bare EMPTY_DICT.
func (e *Encoder) WriteFloatListDict(dict map[string][]float32) {
	e.WriteEmptyDict()
	if len(dict) == 0 {
		return
	}

	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.WriteMark()
	for _, k := range keys {
		e.WriteString(k)
		e.WriteFloatList(dict[k])
	}
	e.WriteSetItems()
}

// Encode writes a complete pickle of dict to w.
func Encode(w io.Writer, dict map[string][]float32) error {
	enc := NewEncoder(w)
	enc.WriteHeader()
	enc.WriteFloatListDict(dict)
	enc.WriteStop()
	return enc.Err()
}

// EncodeRecord returns the snapshot bytes for one record.
func EncodeRecord(rec capture.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rec.Fields()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile creates or truncates path and writes rec to it. A partially written
// file is left in place.
func WriteFile(path string, rec capture.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}

	w := bufio.NewWriter(f)
	if err := Encode(w, rec.Fields()); err != nil {
		f.Close()
		return &IOError{Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &IOError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}
