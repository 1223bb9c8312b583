package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armrec/pkg/robot"
	"github.com/gwillem/armrec/pkg/transport"
)

const scenarioResponse = `{"s":1.5,"b":-2.25,"e":0.0,"t":10.0}`

func TestExtractValue(t *testing.T) {
	tests := []struct {
		name     string
		response string
		key      string
		want     float32
	}{
		{"first field", `{"s":1.5,"b":2}`, "s", 1.5},
		{"last field closes with brace", `{"s":1.5,"b":-2.25}`, "b", -2.25},
		{"surrounding noise", `garbage {"T":1051,"x":309.5,"e":1.57,"t":3.14} trailing`, "e", 1.57},
		{"whitespace around value", `{"s": 0.25 ,"b":1}`, "s", 0.25},
		{"exponent", `{"z":1e-3}`, "z", 0.001},
		{"case sensitive key", `{"T":105,"t":7}`, "t", 7},
		{"longer key with same prefix", `{"tB":4,"t":2}`, "t", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractValue(tt.response, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractValue_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		key      string
		want     error
	}{
		{"absent key", `{"s":1.5}`, "b", ErrFieldNotFound},
		{"empty response", ``, "s", ErrFieldNotFound},
		{"non numeric", `{"s":abc,"b":1}`, "s", ErrMalformedNumber},
		{"empty value", `{"s":,"b":1}`, "s", ErrMalformedNumber},
		{"missing terminator", `{"s":1.5`, "s", ErrMalformedNumber},
		{"nested structure", `{"s":[1,2]}`, "s", ErrMalformedNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractValue(tt.response, tt.key)
			require.ErrorIs(t, err, tt.want)

			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tt.key, fieldErr.Key)
		})
	}
}

func TestParseJoints(t *testing.T) {
	s, err := ParseJoints(scenarioResponse)
	require.NoError(t, err)
	assert.Equal(t, robot.JointSample{Shoulder: 1.5, Base: -2.25, Elbow: 0, Hand: 10}, s)

	_, err = ParseJoints(`{"s":1.5,"b":-2.25,"e":0.0}`)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestParsePose(t *testing.T) {
	p, err := ParsePose(`{"x":309.5,"y":-3.25,"z":120,"s":0}`)
	require.NoError(t, err)
	assert.Equal(t, robot.Pose{X: 309.5, Y: -3.25, Z: 120}, p)

	_, err = ParsePose(`{"x":1,"y":2}`)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestDriveCommand(t *testing.T) {
	master, err := ParseJoints(scenarioResponse)
	require.NoError(t, err)

	assert.Equal(t,
		`{"T":102,"base":-2.25,"shoulder":1.5,"elbow":0,"hand":10,"spd":0,"acc":0}`,
		DriveCommand(master))
}

func TestFormatValue(t *testing.T) {
	tests := map[float32]string{
		0:          "0",
		10:         "10",
		-2.25:      "-2.25",
		3.14159265: "3.14159",
		1234567:    "1.23457e+06",
		0.0001:     "0.0001",
		0.00001:    "1e-05",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatValue(in), "formatValue(%v)", in)
	}
}

// recordSleeps returns a policy that records sleeps instead of waiting.
func recordSleeps(attempts int) (RetryPolicy, *[]time.Duration) {
	var sleeps []time.Duration
	return RetryPolicy{
		Attempts: attempts,
		Interval: 100 * time.Millisecond,
		Sleep:    func(d time.Duration) { sleeps = append(sleeps, d) },
	}, &sleeps
}

func respondWith(resp string) func(string) string {
	return func(text string) string {
		if text == StatusRequest {
			return resp
		}
		return ""
	}
}

func TestExchange_Success(t *testing.T) {
	master := transport.NewMockLink(respondWith(scenarioResponse))
	follower := transport.NewMockLink(respondWith(`{"s":0.5,"b":0.25,"e":1,"t":2,"x":1,"y":2,"z":3}`))
	policy, sleeps := recordSleeps(5)

	res, err := Exchange(master, follower, policy)
	require.NoError(t, err)

	assert.Equal(t, robot.JointSample{Shoulder: 1.5, Base: -2.25, Elbow: 0, Hand: 10}, res.Master)
	assert.Equal(t, robot.JointSample{Shoulder: 0.5, Base: 0.25, Elbow: 1, Hand: 2}, res.Follower)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, *sleeps)
	assert.Equal(t, []string{StatusRequest}, master.Sent())
	assert.Equal(t, []string{StatusRequest}, follower.Sent())
}

func TestExchange_LateResponse(t *testing.T) {
	// Both arms have to answer in the same attempt, so the master answers every poll.
	master := transport.NewMockLink(nil)
	master.Queue(scenarioResponse, scenarioResponse, scenarioResponse)
	polls := 0
	follower := &lateEndpoint{Endpoint: transport.NewMockLink(nil), answerAt: 3, response: scenarioResponse, polls: &polls}
	policy, sleeps := recordSleeps(5)

	res, err := Exchange(master, follower, policy)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, *sleeps, 2)
}

// lateEndpoint answers only on its answerAt-th receive.
type lateEndpoint struct {
	Endpoint
	answerAt int
	response string
	polls    *int
}

func (l *lateEndpoint) Receive() (string, error) {
	*l.polls++
	if *l.polls == l.answerAt {
		return l.response, nil
	}
	return "", nil
}

func TestExchange_NoData(t *testing.T) {
	master := transport.NewMockLink(respondWith(scenarioResponse))
	follower := transport.NewMockLink(nil)
	policy, sleeps := recordSleeps(5)

	_, err := Exchange(master, follower, policy)
	require.ErrorIs(t, err, ErrNoData)

	assert.Equal(t, 5, follower.ReceiveCalls())
	assert.Len(t, *sleeps, 4)
	for _, d := range *sleeps {
		assert.Equal(t, 100*time.Millisecond, d)
	}
}

func TestExchange_ReceiveErrorCountsAsEmpty(t *testing.T) {
	master := transport.NewMockLink(respondWith(scenarioResponse))
	follower := transport.NewMockLink(respondWith(scenarioResponse))
	follower.ReceiveErr = errors.New("device gone")
	policy, _ := recordSleeps(3)

	_, err := Exchange(master, follower, policy)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestExchange_SendFailureAbandons(t *testing.T) {
	boom := errors.New("write failed")

	master := transport.NewMockLink(respondWith(scenarioResponse))
	master.SendErr = boom
	follower := transport.NewMockLink(respondWith(scenarioResponse))
	policy, _ := recordSleeps(5)

	_, err := Exchange(master, follower, policy)
	require.ErrorIs(t, err, boom)
	var linkErr *transport.Error
	assert.ErrorAs(t, err, &linkErr)
	assert.Empty(t, follower.Sent(), "follower must not be asked when the master send fails")
	assert.Zero(t, master.ReceiveCalls())

	master.SendErr = nil
	follower.SendErr = boom
	_, err = Exchange(master, follower, policy)
	assert.ErrorIs(t, err, boom)
}

func TestExchange_ParseFailure(t *testing.T) {
	master := transport.NewMockLink(respondWith(`{"s":1,"b":2,"e":3}`))
	follower := transport.NewMockLink(respondWith(scenarioResponse))
	policy, _ := recordSleeps(5)

	_, err := Exchange(master, follower, policy)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	follower = transport.NewMockLink(respondWith(`{"s":x,"b":2,"e":3,"t":4}`))
	master = transport.NewMockLink(respondWith(scenarioResponse))
	_, err = Exchange(master, follower, policy)
	assert.ErrorIs(t, err, ErrMalformedNumber)
}

func TestRetryPolicy_Normalize(t *testing.T) {
	p := RetryPolicy{}.normalize()
	assert.Equal(t, 1, p.Attempts)
	assert.NotNil(t, p.Sleep)

	d := DefaultRetryPolicy()
	assert.Equal(t, 5, d.Attempts)
	assert.Equal(t, 100*time.Millisecond, d.Interval)
}

func TestProbe(t *testing.T) {
	link := transport.NewMockLink(respondWith(scenarioResponse))
	policy, sleeps := recordSleeps(3)

	got, err := Probe(link, policy)
	require.NoError(t, err)
	assert.Equal(t, robot.JointSample{Shoulder: 1.5, Base: -2.25, Elbow: 0, Hand: 10}, got)
	assert.Empty(t, *sleeps)
}

func TestProbe_Silent(t *testing.T) {
	link := transport.NewMockLink(nil)
	policy, sleeps := recordSleeps(3)

	_, err := Probe(link, policy)
	require.ErrorIs(t, err, ErrNoData)
	assert.Len(t, *sleeps, 2)
	assert.Equal(t, 3, link.ReceiveCalls())
}

func TestProbe_NotAnArm(t *testing.T) {
	link := transport.NewMockLink(respondWith("AT OK"))
	policy, _ := recordSleeps(1)

	_, err := Probe(link, policy)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}
