package robot

import (
	"fmt"

	"github.com/gwillem/armrec/pkg/transport"
)

// Role distinguishes the two arms.
type Role string

const (
	Master   Role = "master"
	Follower Role = "follower"
)

// Arm is one endpoint of the teleoperation pair.
type Arm struct {
	role   Role
	device string
	link   transport.Link
}

// NewArm opens the arm's serial link.
func NewArm(role Role, device string, open transport.Opener, opts transport.Options) (*Arm, error) {
	link, err := open(device, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s arm: %w", role, err)
	}
	return NewArmWithLink(role, device, link), nil
}

// NewArmWithLink wraps an already open link.
func NewArmWithLink(role Role, device string, link transport.Link) *Arm {
	return &Arm{
		role:   role,
		device: device,
		link:   link,
	}
}

// Role returns the arm's role.
func (a *Arm) Role() Role {
	return a.role
}

// Device returns the device path of the arm's link.
func (a *Arm) Device() string {
	return a.device
}

// Send writes a command to the arm.
func (a *Arm) Send(text string) error {
	if err := a.link.Send(text); err != nil {
		return fmt.Errorf("%s: %w", a.role, err)
	}
	return nil
}

// Receive reads the arm's pending response, "" if none.
func (a *Arm) Receive() (string, error) {
	resp, err := a.link.Receive()
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.role, err)
	}
	return resp, nil
}

// Close closes the arm's link.
func (a *Arm) Close() error {
	return a.link.Close()
}
