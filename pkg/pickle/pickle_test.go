package pickle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armrec/pkg/capture"
	"github.com/gwillem/armrec/pkg/robot"
)

// concat joins byte fragments so golden streams read opcode by opcode.
func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func b(s string) []byte { return []byte(s) }

func TestEncodeRecord_Golden(t *testing.T) {
	control := robot.JointSample{Shoulder: 1, Base: 0, Elbow: 0, Hand: 0}
	rec := capture.Record{
		JointPositions: robot.JointSample{Shoulder: 1.5, Base: -2.25, Elbow: 0, Hand: 10},
		Control:        &control,
	}

	want := concat(
		[]byte{0x80, 0x02},
		b("}"),
		b("("),
		b("U"), []byte{7}, b("control"),
		b("]"),
		b("G"), []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0, 0, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0, 0, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0, 0, 0, 0, 0, 0, 0, 0}, b("a"),
		b("U"), []byte{15}, b("joint_positions"),
		b("]"),
		b("G"), []byte{0x3f, 0xf8, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0xc0, 0x02, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0, 0, 0, 0, 0, 0, 0, 0}, b("a"),
		b("G"), []byte{0x40, 0x24, 0, 0, 0, 0, 0, 0}, b("a"),
		b("u"),
		b("."),
	)

	got, err := EncodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), hex.EncodeToString(got))
}

func TestEncodeRecord_WithoutControl(t *testing.T) {
	rec := capture.Record{JointPositions: robot.JointSample{Shoulder: 1.5}}

	got, err := EncodeRecord(rec)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(got, []byte{0x80, 0x02, '}', '(', 'U', 15}))
	assert.NotContains(t, string(got), "control")
	assert.Equal(t, byte('.'), got[len(got)-1])
}

func TestEncode_EmptyDict(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, []byte{0x80, 0x02, '}', '.'}, buf.Bytes())
}

func TestEncode_KeysAscending(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, map[string][]float32{"zeta": nil, "alpha": nil, "mid": nil}))

	s := buf.String()
	assert.Less(t, strings.Index(s, "alpha"), strings.Index(s, "mid"))
	assert.Less(t, strings.Index(s, "mid"), strings.Index(s, "zeta"))
}

func TestEncoder_StringTooLong(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.WriteString(strings.Repeat("k", MaxStringLen))
	require.NoError(t, enc.Err())

	enc.WriteString(strings.Repeat("k", MaxStringLen+1))
	require.ErrorIs(t, enc.Err(), ErrStringTooLong)

	// Sticky: nothing more is written.
	n := buf.Len()
	enc.WriteStop()
	assert.Equal(t, n, buf.Len())
}

type failWriter struct{ after int }

func (w *failWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestEncode_WriteError(t *testing.T) {
	err := Encode(&failWriter{after: 3}, map[string][]float32{"k": {1, 2}})
	assert.EqualError(t, err, "disk full")
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rec  capture.Record
	}{
		{"positions only", capture.Record{
			JointPositions: robot.JointSample{Shoulder: 0.1, Base: -3.3333333, Elbow: 1e-7, Hand: 359.99},
		}},
		{"with control", capture.Record{
			JointPositions: robot.JointSample{Shoulder: 1.5, Base: -2.25, Elbow: 0, Hand: 10},
			Control:        &robot.JointSample{Shoulder: 0.7, Base: 0.3, Elbow: -1.1, Hand: 2.2},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRecord(tt.rec)
			require.NoError(t, err)

			// Decode is backed by og-rek, so this checks the encoder against
			// a reader it shares no code with.
			v, err := Decode(bytes.NewReader(data))
			require.NoError(t, err)

			got, err := DecodeRecord(v)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.rec, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_PythonOutput(t *testing.T) {
	// pickle.dumps({'a': [1.5]}, protocol=2)
	data, err := hex.DecodeString("80027d710058010000006171015d7102473ff800000000000061732e")
	require.NoError(t, err)

	v, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": []any{1.5}}, v)
}

func TestDecode_PythonIntsAndTuples(t *testing.T) {
	// pickle.dumps({'joint_positions': [1, 2.5, -3, 0], 'control': (0.5, 1, 2, 3)}, protocol=2)
	data, err := hex.DecodeString("80027d710028580f0000006a6f696e745f706f736974696f6e7371015d7102284b014740040000000000004afdffffff4b00655807000000636f6e74726f6c710328473fe00000000000004b014b024b03747104752e")
	require.NoError(t, err)

	v, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	rec, err := DecodeRecord(v)
	require.NoError(t, err)
	assert.Equal(t, robot.JointSample{Shoulder: 1, Base: 2.5, Elbow: -3, Hand: 0}, rec.JointPositions)
	require.NotNil(t, rec.Control)
	assert.Equal(t, robot.JointSample{Shoulder: 0.5, Base: 1, Elbow: 2, Hand: 3}, *rec.Control)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte{0x80, 0x02, '}'}},
		{"truncated float", []byte{0x80, 0x02, 'G', 0x3f, 0xf0}},
		{"unknown opcode", []byte{0x80, 0x02, 0xff, '.'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_HugeLengthDoesNotPreallocate(t *testing.T) {
	// BINUNICODE claiming 2 GiB of payload in a 7 byte stream.
	data := []byte{0x80, 0x02, 'X', 0xff, 0xff, 0xff, 0x7f}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	_, err := Decode(bytes.NewReader(data))

	runtime.ReadMemStats(&after)
	require.ErrorIs(t, err, ErrMalformed)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(64<<20))
}

func TestDecodeRecord_Invalid(t *testing.T) {
	_, err := DecodeRecord([]any{1.0})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRecord(map[string]any{"control": []any{1.0, 2.0, 3.0, 4.0}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = DecodeRecord(map[string]any{"joint_positions": []any{1.0, 2.0}})
	assert.Error(t, err)

	_, err = DecodeRecord(map[string]any{"joint_positions": []any{1.0, "x", 3.0, 4.0}})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_0.pkl")

	rec := capture.Record{JointPositions: robot.JointSample{Shoulder: 1, Base: 2, Elbow: 3, Hand: 4}}
	require.NoError(t, WriteFile(path, rec))

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := EncodeRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, want, onDisk)

	got, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteFile_Truncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data_0.pkl")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{'x'}, 4096), 0o644))

	rec := capture.Record{JointPositions: robot.JointSample{Hand: 1}}
	require.NoError(t, WriteFile(path, rec))

	got, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestWriteFile_IOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "data_0.pkl")

	err := WriteFile(path, capture.Record{})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, path, ioErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = DecodeFile(path)
	require.ErrorAs(t, err, &ioErr)
}
