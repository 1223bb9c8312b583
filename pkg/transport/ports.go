package transport

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
)

// ErrNoPorts is returned when enumeration succeeds but finds nothing usable.
var ErrNoPorts = errors.New("no serial ports detected")

// Default device paths used when the operator does not pick one.
const (
	DefaultMasterDevice   = "/dev/ttyUSB0"
	DefaultFollowerDevice = "/dev/ttyUSB1"
)

// portLister is replaced in tests.
var portLister = serial.GetPortsList

// ListPorts returns the candidate serial devices, sorted.
func ListPorts() ([]string, error) {
	ports, err := portLister()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}

	var candidates []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		candidates = append(candidates, port)
	}
	if len(candidates) == 0 {
		return nil, ErrNoPorts
	}

	sort.Strings(candidates)
	return candidates, nil
}
