package protocol

import (
	"fmt"
	"time"

	"github.com/gwillem/armrec/pkg/robot"
)

// Endpoint is the side of a link the exchange needs.
type Endpoint interface {
	Send(text string) error
	Receive() (string, error)
}

// RetryPolicy bounds how long an exchange polls for responses.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration

	// Sleep waits between attempts; nil means time.Sleep.
	Sleep func(time.Duration)
}

// DefaultRetryPolicy polls 5 times, 100 ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 5,
		Interval: 100 * time.Millisecond,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	return p
}

// Result is the outcome of one successful exchange.
type Result struct {
	Master      robot.JointSample
	Follower    robot.JointSample
	MasterRaw   string
	FollowerRaw string
	Attempts    int
}

// Exchange requests status from both arms and parses their joint samples.
//
// The request goes to the master first; if either send fails the exchange is
// abandoned. Both arms are then polled until they answer in the same attempt.
// A receive error counts as an empty answer for that attempt. Nothing is retried
// across calls: the caller's loop simply tries again on its next period.
func Exchange(master, follower Endpoint, policy RetryPolicy) (Result, error) {
	policy = policy.normalize()

	if err := master.Send(StatusRequest); err != nil {
		return Result{}, fmt.Errorf("request status: %w", err)
	}
	if err := follower.Send(StatusRequest); err != nil {
		return Result{}, fmt.Errorf("request status: %w", err)
	}

	var res Result
	var masterResp, followerResp string
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		res.Attempts = attempt
		masterResp, _ = master.Receive()
		followerResp, _ = follower.Receive()
		if masterResp != "" && followerResp != "" {
			break
		}
		if attempt < policy.Attempts {
			policy.Sleep(policy.Interval)
		}
	}
	if masterResp == "" || followerResp == "" {
		return res, fmt.Errorf("after %d attempts: %w", res.Attempts, ErrNoData)
	}
	res.MasterRaw = masterResp
	res.FollowerRaw = followerResp

	var err error
	if res.Follower, err = ParseJoints(followerResp); err != nil {
		return res, fmt.Errorf("parse follower: %w", err)
	}
	if res.Master, err = ParseJoints(masterResp); err != nil {
		return res, fmt.Errorf("parse master: %w", err)
	}
	return res, nil
}

// Probe requests status from a single arm and parses its joints. It polls
// like Exchange and is used to tell arms apart from other serial devices.
func Probe(ep Endpoint, policy RetryPolicy) (robot.JointSample, error) {
	policy = policy.normalize()

	if err := ep.Send(StatusRequest); err != nil {
		return robot.JointSample{}, fmt.Errorf("request status: %w", err)
	}

	var resp string
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if resp, _ = ep.Receive(); resp != "" {
			break
		}
		if attempt < policy.Attempts {
			policy.Sleep(policy.Interval)
		}
	}
	if resp == "" {
		return robot.JointSample{}, fmt.Errorf("after %d attempts: %w", policy.Attempts, ErrNoData)
	}
	return ParseJoints(resp)
}
