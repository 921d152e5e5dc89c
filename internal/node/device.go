package node

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DeviceState tracks where a connection sits in its lifecycle.
type DeviceState string

const (
	StateConnected    DeviceState = "connected"    // socket open, pairing incomplete
	StatePaired       DeviceState = "paired"       // handshake done, tools may target it
	StateDisconnected DeviceState = "disconnected" // gone or cut off
)

// Device is one companion connection, from accept through pairing to
// disconnect. Mutable fields are guarded by mu; conn is set once at
// construction and never reassigned.
type Device struct {
	mu sync.Mutex

	ID           string
	Name         string
	Platform     string
	State        DeviceState
	Capabilities []Capability
	ConnectedAt  time.Time
	LastSeenAt   time.Time

	conn    *websocket.Conn
	pending map[string]chan ToolResponse
}

// newDevice wraps a freshly accepted connection that has not paired yet.
func newDevice(conn *websocket.Conn, at time.Time) *Device {
	return &Device{
		State:       StateConnected,
		ConnectedAt: at,
		LastSeenAt:  at,
		conn:        conn,
		pending:     make(map[string]chan ToolResponse),
	}
}

// touch records frame arrival for heartbeat accounting.
func (d *Device) touch(at time.Time) {
	d.mu.Lock()
	d.LastSeenAt = at
	d.mu.Unlock()
}

// promote stores the declared capabilities and moves the device to the
// paired state.
func (d *Device) promote(caps []Capability) {
	d.mu.Lock()
	d.Capabilities = caps
	d.State = StatePaired
	d.mu.Unlock()
}

// offers reports whether a paired device declares the capability.
func (d *Device) offers(c Capability) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.State == StatePaired && slices.Contains(d.Capabilities, c)
}

func (d *Device) disconnectLocked(code websocket.StatusCode, reason string) {
	if d.conn != nil {
		_ = d.conn.Close(code, reason)
	}
	d.State = StateDisconnected
}

// disconnect closes the underlying connection and marks the device
// disconnected. Safe on a device that never finished pairing.
func (d *Device) disconnect(code websocket.StatusCode, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnectLocked(code, reason)
}

// cutIfStale disconnects a paired device whose last frame is older than
// threshold, reporting the stale LastSeenAt so callers can log it.
func (d *Device) cutIfStale(now time.Time, threshold time.Duration) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State != StatePaired || now.Sub(d.LastSeenAt) <= threshold {
		return time.Time{}, false
	}
	last := d.LastSeenAt
	d.disconnectLocked(websocket.StatusGoingAway, "heartbeat timeout")
	return last, true
}

// registerPending allocates a correlation ID and a reply channel for an
// in-flight tool request. The caller must release it when done.
func (d *Device) registerPending() (string, chan ToolResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.State != StatePaired {
		return "", nil, fmt.Errorf("%w (state: %s)", ErrDeviceNotPaired, d.State)
	}
	id := newCorrelationID()
	ch := make(chan ToolResponse, 1)
	d.pending[id] = ch
	return id, ch, nil
}

func (d *Device) releasePending(id string) {
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

// deliver hands a tool response to whoever waits on the correlation ID.
// The send never blocks, so a duplicate or late response cannot stall
// the frame pump.
func (d *Device) deliver(corrID string, resp ToolResponse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.pending[corrID]
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// SendToolRequest forwards a tool invocation to the device and blocks
// until the device answers or ctx expires.
func (d *Device) SendToolRequest(ctx context.Context, toolName string, args json.RawMessage) (ToolResponse, error) {
	corrID, reply, err := d.registerPending()
	if err != nil {
		return ToolResponse{}, err
	}
	defer d.releasePending(corrID)

	env, err := newEnvelope(MsgToolRequest, corrID, ToolRequest{ToolName: toolName, Arguments: args})
	if err != nil {
		return ToolResponse{}, err
	}
	frame, _ := json.Marshal(env)
	if err := d.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return ToolResponse{}, fmt.Errorf("node: write to device %s: %w", d.ID, err)
	}

	select {
	case <-ctx.Done():
		return ToolResponse{}, ctx.Err()
	case resp := <-reply:
		return resp, nil
	}
}

// DeviceStore holds the currently connected devices, keyed by device ID.
type DeviceStore struct {
	mu   sync.RWMutex
	byID map[string]*Device
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{byID: make(map[string]*Device)}
}

// Add inserts a device unconditionally.
func (s *DeviceStore) Add(d *Device) {
	s.mu.Lock()
	s.byID[d.ID] = d
	s.mu.Unlock()
}

// AddIfUnder inserts the device only while the store holds fewer than max
// entries. Check and insert share one lock so parallel pairings cannot
// race past the limit.
func (s *DeviceStore) AddIfUnder(d *Device, max int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.byID) >= max {
		return false
	}
	s.byID[d.ID] = d
	return true
}

// Get returns the device with the given ID, or false if absent.
func (s *DeviceStore) Get(id string) (*Device, bool) {
	s.mu.RLock()
	d, ok := s.byID[id]
	s.mu.RUnlock()
	return d, ok
}

func (s *DeviceStore) Remove(id string) {
	s.mu.Lock()
	delete(s.byID, id)
	s.mu.Unlock()
}

func (s *DeviceStore) Len() int {
	s.mu.RLock()
	n := len(s.byID)
	s.mu.RUnlock()
	return n
}

// ByCapability returns the paired devices that declare the capability.
func (s *DeviceStore) ByCapability(c Capability) []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*Device
	for _, d := range s.byID {
		if d.offers(c) {
			matched = append(matched, d)
		}
	}
	return matched
}

// Range visits every device until fn returns false.
func (s *DeviceStore) Range(fn func(id string, d *Device) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, d := range s.byID {
		if !fn(id, d) {
			break
		}
	}
}

// DeviceSnapshot is a point-in-time copy of a device's state, safe to
// hold after the device itself has moved on.
type DeviceSnapshot struct {
	ID           string
	Name         string
	Platform     string
	State        DeviceState
	Capabilities []Capability
	ConnectedAt  time.Time
	LastSeenAt   time.Time
}

func (d *Device) snapshot() DeviceSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DeviceSnapshot{
		ID:           d.ID,
		Name:         d.Name,
		Platform:     d.Platform,
		State:        d.State,
		Capabilities: slices.Clone(d.Capabilities),
		ConnectedAt:  d.ConnectedAt,
		LastSeenAt:   d.LastSeenAt,
	}
}

// Snapshots returns a copy of every device's state, ordered by ID.
func (s *DeviceStore) Snapshots() []DeviceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DeviceSnapshot, 0, len(s.byID))
	for _, d := range s.byID {
		out = append(out, d.snapshot())
	}
	slices.SortFunc(out, func(a, b DeviceSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func newCorrelationID() string {
	return rand.Text()
}

// newDeviceID returns a fresh identifier with the "dev-" prefix status
// surfaces key on. Lowercased so generated IDs read like the hand-picked
// ones in configs and docs.
func newDeviceID() string {
	return "dev-" + strings.ToLower(rand.Text())
}
