package pickle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	ogorek "github.com/kisielk/og-rek"

	"github.com/gwillem/armrec/pkg/capture"
	"github.com/gwillem/armrec/pkg/robot"
)

// ErrMalformed is returned when a stream cannot be decoded or does not hold a snapshot.
var ErrMalformed = errors.New("malformed pickle")

// Decode reads a single pickle from r. Dicts decode to map[string]any, lists
// and tuples to []any, floats to float64 and integers to int64.
func Decode(r io.Reader) (any, error) {
	v, err := ogorek.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return normalize(v)
}

// normalize converts the decoder's Python-shaped values into plain Go values
// with string dict keys.
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, item := range t {
			key, ok := stringKey(k)
			if !ok {
				return nil, fmt.Errorf("%w: dict key %T", ErrMalformed, k)
			}
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			m[key] = n
		}
		return m, nil
	case []any:
		return normalizeList(t)
	case ogorek.Tuple:
		return normalizeList(t)
	case ogorek.None:
		return nil, nil
	case float64, int64, bool:
		return t, nil
	default:
		if s, ok := stringKey(v); ok {
			return s, nil
		}
		return v, nil
	}
}

func normalizeList(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		n, err := normalize(item)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// stringKey accepts str and bytes-like string kinds.
func stringKey(k any) (string, bool) {
	if s, ok := k.(string); ok {
		return s, true
	}
	if rv := reflect.ValueOf(k); rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

// DecodeRecord converts a decoded snapshot back into a capture record.
func DecodeRecord(v any) (capture.Record, error) {
	dict, ok := v.(map[string]any)
	if !ok {
		return capture.Record{}, fmt.Errorf("%w: snapshot is %T, not a dict", ErrMalformed, v)
	}

	raw, ok := dict[capture.KeyJointPositions]
	if !ok {
		return capture.Record{}, fmt.Errorf("%w: missing %q", ErrMalformed, capture.KeyJointPositions)
	}
	positions, err := sampleFrom(raw)
	if err != nil {
		return capture.Record{}, fmt.Errorf("%s: %w", capture.KeyJointPositions, err)
	}

	rec := capture.Record{JointPositions: positions}
	if raw, ok := dict[capture.KeyControl]; ok {
		control, err := sampleFrom(raw)
		if err != nil {
			return capture.Record{}, fmt.Errorf("%s: %w", capture.KeyControl, err)
		}
		rec.Control = &control
	}
	return rec, nil
}

func sampleFrom(v any) (robot.JointSample, error) {
	list, ok := v.([]any)
	if !ok {
		return robot.JointSample{}, fmt.Errorf("%w: expected list, got %T", ErrMalformed, v)
	}
	values := make([]float32, len(list))
	for i, item := range list {
		switch n := item.(type) {
		case float64:
			values[i] = float32(n)
		case int64:
			values[i] = float32(n)
		default:
			return robot.JointSample{}, fmt.Errorf("%w: element %d is %T", ErrMalformed, i, item)
		}
	}
	return robot.SampleFromValues(values)
}

// DecodeFile reads the snapshot at path.
func DecodeFile(path string) (capture.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return capture.Record{}, &IOError{Path: path, Err: err}
	}
	defer f.Close()

	v, err := Decode(f)
	if err != nil {
		return capture.Record{}, &IOError{Path: path, Err: err}
	}
	rec, err := DecodeRecord(v)
	if err != nil {
		return capture.Record{}, &IOError{Path: path, Err: err}
	}
	return rec, nil
}
