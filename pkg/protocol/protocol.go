// Package protocol implements the JSON-over-serial command exchange with the arms.
//
// Responses are not parsed as JSON. Fields are located by substring search for
// `"key":` and read up to the next comma or closing brace, which tolerates any
// surrounding text the firmware emits.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gwillem/armrec/pkg/robot"
)

// Command texts understood by the arm firmware. The transport adds the line terminator.
const (
	// StatusRequest asks an arm for its joint telemetry.
	StatusRequest = `{"T":105}`
	// InitCommand is sent once to the master arm at startup.
	InitCommand = `{"T":210,"cmd":0}`
	// EmergencyStop drives every follower joint to zero with zero speed.
	EmergencyStop = `{"T":102,"spd":0,"acc":0,"base":0,"shoulder":0,"elbow":0,"hand":0}`
)

var (
	// ErrNoData means one or both arms did not answer within the retry budget.
	ErrNoData = errors.New("no data received")
	// ErrFieldNotFound means the response does not contain the requested key.
	ErrFieldNotFound = errors.New("field not found")
	// ErrMalformedNumber means the key's value could not be parsed.
	ErrMalformedNumber = errors.New("malformed number")
)

// FieldError reports a field extraction failure.
type FieldError struct {
	Key   string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrMalformedNumber) {
		return fmt.Sprintf("field %q: %v %q", e.Key, e.Err, e.Value)
	}
	return fmt.Sprintf("field %q: %v", e.Key, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// DriveCommand builds the follower drive command for a target sample,
// with zero speed and acceleration.
func DriveCommand(target robot.JointSample) string {
	var sb strings.Builder
	sb.WriteString(`{"T":102`)
	sb.WriteString(`,"base":` + formatValue(target.Base))
	sb.WriteString(`,"shoulder":` + formatValue(target.Shoulder))
	sb.WriteString(`,"elbow":` + formatValue(target.Elbow))
	sb.WriteString(`,"hand":` + formatValue(target.Hand))
	sb.WriteString(`,"spd":0,"acc":0}`)
	return sb.String()
}

// formatValue renders like a default iostream: shortest of %f/%e at 6 significant digits.
func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}

// ExtractValue returns the numeric value following `"key":` in response.
func ExtractValue(response, key string) (float32, error) {
	needle := `"` + key + `":`
	pos := strings.Index(response, needle)
	if pos < 0 {
		return 0, &FieldError{Key: key, Err: ErrFieldNotFound}
	}

	rest := response[pos+len(needle):]
	end := strings.IndexByte(rest, ',')
	if end < 0 {
		end = strings.IndexByte(rest, '}')
	}
	if end < 0 {
		return 0, &FieldError{Key: key, Value: rest, Err: ErrMalformedNumber}
	}

	raw := strings.TrimSpace(rest[:end])
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, &FieldError{Key: key, Value: raw, Err: ErrMalformedNumber}
	}
	return float32(v), nil
}

// ParseJoints extracts the s, b, e and t fields.
func ParseJoints(response string) (robot.JointSample, error) {
	var s robot.JointSample
	for _, name := range robot.AllJoints() {
		v, err := ExtractValue(response, name.Key())
		if err != nil {
			return robot.JointSample{}, err
		}
		s.Set(name, v)
	}
	return s, nil
}

// ParsePose extracts the x, y and z fields.
func ParsePose(response string) (robot.Pose, error) {
	x, err := ExtractValue(response, "x")
	if err != nil {
		return robot.Pose{}, err
	}
	y, err := ExtractValue(response, "y")
	if err != nil {
		return robot.Pose{}, err
	}
	z, err := ExtractValue(response, "z")
	if err != nil {
		return robot.Pose{}, err
	}
	return robot.Pose{X: x, Y: y, Z: z}, nil
}
