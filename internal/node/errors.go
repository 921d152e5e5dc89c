// Package node manages the WebSocket fleet of paired devices and the
// tools they expose.
package node

import "errors"

// Sentinel errors returned by the manager and device proxies.
var (
	ErrNoDeviceAvailable = errors.New("node: no connected device exposes the required capability")
	ErrDeviceTimeout     = errors.New("node: device reply deadline exceeded")
	ErrDeviceNotPaired   = errors.New("node: device has not completed pairing")
	ErrInvalidToken      = errors.New("node: pairing token rejected")
	ErrMaxDevices        = errors.New("node: device limit reached")
)
