// Package armrec records teleoperation sessions of a four-joint leader/follower
// arm pair.
//
// A master arm is moved by hand while the follower mirrors it over a
// JSON-over-serial protocol. Every control iteration appends a joint snapshot,
// and an optional camera captures frames tagged with the same counter. When
// recording stops, each snapshot is written as a Python pickle file that
// training code can load directly.
//
// # Installation
//
//	go install github.com/gwillem/armrec/cmd/armrec@latest
//
// # Usage
//
// Find the arms and save their ports:
//
//	armrec setup
//
// Then record:
//
//	armrec record
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armrec: CLI with record, setup, ports, inspect and runs commands
//   - pkg/transport: Serial links and port enumeration
//   - pkg/protocol: Command texts, telemetry parsing and the status exchange
//   - pkg/robot: Joint model, arm endpoints and the safe zone
//   - pkg/capture: Shared record buffer and frame counter
//   - pkg/pickle: Snapshot file codec
//   - pkg/camera: Frame capture and image storage
//   - pkg/teleop: The recorder running the control and capture loops
//   - pkg/config, pkg/logging, pkg/metrics, pkg/catalog: Settings, logs, metrics and the run index
package armrec
