package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/tool"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Manager{})
}

const (
	defaultMaxDevices        = 10
	defaultHeartbeatInterval = 30 * time.Second
	defaultToolTimeout       = 30 * time.Second

	// handshakeTimeout bounds each read during the pair and capabilities
	// exchange so a half-open client cannot hold a slot.
	handshakeTimeout = 10 * time.Second

	// missedBeatsLimit is how many heartbeat intervals may pass without a
	// frame before the sweep cuts a device off.
	missedBeatsLimit = 3
)

// ManagerConfig holds the YAML settings for the node.manager module.
type ManagerConfig struct {
	PairingTokens     []string `yaml:"pairing_tokens"`
	MaxDevices        int      `yaml:"max_devices"`
	HeartbeatInterval string   `yaml:"heartbeat_interval"`
	ToolTimeout       string   `yaml:"tool_timeout"`
}

func (c *ManagerConfig) applyDefaults() {
	if c.MaxDevices <= 0 {
		c.MaxDevices = defaultMaxDevices
	}
	if c.HeartbeatInterval == "" {
		c.HeartbeatInterval = defaultHeartbeatInterval.String()
	}
	if c.ToolTimeout == "" {
		c.ToolTimeout = defaultToolTimeout.String()
	}
}

// durations parses the two interval fields.
func (c ManagerConfig) durations() (heartbeat, toolTimeout time.Duration, err error) {
	if heartbeat, err = time.ParseDuration(c.HeartbeatInterval); err != nil {
		return 0, 0, fmt.Errorf("node: invalid heartbeat_interval %q: %w", c.HeartbeatInterval, err)
	}
	if toolTimeout, err = time.ParseDuration(c.ToolTimeout); err != nil {
		return 0, 0, fmt.Errorf("node: invalid tool_timeout %q: %w", c.ToolTimeout, err)
	}
	return heartbeat, toolTimeout, nil
}

// Manager accepts WebSocket connections from companion devices, walks them
// through pairing, and exposes their declared capabilities as tools. It
// implements core.Module and the lifecycle interfaces.
type Manager struct {
	config ManagerConfig
	appCtx *core.AppContext
	logger *slog.Logger

	store  *DeviceStore
	tokens map[string]struct{}
	cancel context.CancelFunc

	heartbeat   time.Duration
	toolTimeout time.Duration
}

// ModuleInfo implements core.Module.
func (m *Manager) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "node.manager",
		New: func() core.Module { return new(Manager) },
	}
}

// Configure implements core.Configurable.
func (m *Manager) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	m.config.applyDefaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Manager) Provision(ctx *core.AppContext) error {
	heartbeat, toolTimeout, err := m.config.durations()
	if err != nil {
		return err
	}
	m.heartbeat, m.toolTimeout = heartbeat, toolTimeout

	m.appCtx = ctx
	m.logger = ctx.Logger
	m.store = NewDeviceStore()
	m.tokens = tokenSet(m.config.PairingTokens)

	ctx.RegisterService("node.store", m.store)
	ctx.RegisterService("node.handler", http.HandlerFunc(m.serveDevice))
	return nil
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Validate implements core.Validator.
func (m *Manager) Validate() error {
	if len(m.tokens) == 0 {
		return errors.New("node: pairing_tokens must list at least one token")
	}
	return nil
}

// Start implements core.Starter. It launches the heartbeat sweep.
func (m *Manager) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go m.sweepLoop(ctx)

	m.logger.Info("node manager started", "heartbeat_interval", m.heartbeat, "max_devices", m.config.MaxDevices)
	return nil
}

// Stop implements core.Stopper. It cancels the sweep and closes every
// device connection.
func (m *Manager) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	m.store.Range(func(_ string, d *Device) bool {
		d.disconnect(websocket.StatusGoingAway, "server shutting down")
		return true
	})

	m.logger.Info("node manager stopped")
	return nil
}

// peer is the write side of one device socket. Send failures are logged
// and swallowed; the read side observes the broken connection and tears
// the session down.
type peer struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

func (p peer) send(ctx context.Context, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("marshal envelope failed", "error", err)
		return
	}
	if err := p.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		p.logger.Warn("write to device failed", "error", err)
	}
}

func (p peer) sendError(ctx context.Context, id, msg string) {
	if env, err := newEnvelope(MsgError, id, map[string]string{"message": msg}); err == nil {
		p.send(ctx, env)
	}
}

func (p peer) pairResult(ctx context.Context, id string, resp PairResponse) {
	if env, err := newEnvelope(MsgPairResponse, id, resp); err == nil {
		p.send(ctx, env)
	}
}

func (p peer) ackHeartbeat(ctx context.Context, id string) {
	if env, err := newEnvelope(MsgHeartbeatAck, id, nil); err == nil {
		p.send(ctx, env)
	}
}

// serveDevice runs one companion connection end to end: accept, pairing,
// capabilities exchange, then the frame pump until the socket dies.
func (m *Manager) serveDevice(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		m.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	p := peer{conn: conn, logger: m.logger}
	device := newDevice(conn, time.Now())

	if err := m.pairDevice(ctx, p, device); err != nil {
		m.logger.Warn("pairing failed", "error", err)
		return
	}

	if err := m.awaitCapabilities(ctx, device); err != nil {
		m.logger.Warn("capabilities exchange failed", "device_id", device.ID, "error", err)
		m.store.Remove(device.ID)
		return
	}

	m.logger.Info("device paired",
		"device_id", device.ID, "name", device.Name,
		"platform", device.Platform, "capabilities", device.Capabilities,
	)

	m.pumpFrames(ctx, p, device)

	device.disconnect(websocket.StatusNormalClosure, "session ended")
	m.logger.Info("device disconnected", "device_id", device.ID)
	m.store.Remove(device.ID)
}

// readTimed reads one raw frame, giving up after the handshake timeout.
func readTimed(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	readCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	_, frame, err := conn.Read(readCtx)
	return frame, err
}

func decodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// decodePayload unpacks an envelope's payload into the frame type the
// envelope's Type field promises.
func decodePayload[T any](env Envelope) (T, error) {
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return payload, nil
}

// pairDevice reads the pair request, checks the token, and admits the
// device into the store. Every failure is answered on the wire before
// the connection drops.
func (m *Manager) pairDevice(ctx context.Context, p peer, device *Device) error {
	frame, err := readTimed(ctx, device.conn)
	if err != nil {
		p.sendError(ctx, "", "failed to read pair request")
		return fmt.Errorf("read pair_request: %w", err)
	}

	env, err := decodeEnvelope(frame)
	if err != nil {
		p.sendError(ctx, "", "invalid message format")
		return err
	}
	if env.Type != MsgPairRequest {
		p.sendError(ctx, env.ID, "expected pair_request")
		return fmt.Errorf("unexpected message type: %s", env.Type)
	}

	req, err := decodePayload[PairRequest](env)
	if err != nil {
		p.sendError(ctx, env.ID, "invalid pair_request payload")
		return err
	}

	if _, ok := m.tokens[req.Token]; !ok {
		p.pairResult(ctx, env.ID, PairResponse{Reason: "invalid pairing token"})
		return ErrInvalidToken
	}

	device.ID = newDeviceID()
	device.Name = req.DeviceName
	device.Platform = req.Platform

	if !m.store.AddIfUnder(device, m.config.MaxDevices) {
		p.pairResult(ctx, env.ID, PairResponse{Reason: "maximum number of devices reached"})
		return ErrMaxDevices
	}

	p.pairResult(ctx, env.ID, PairResponse{Accepted: true, DeviceID: device.ID})
	return nil
}

// awaitCapabilities reads the capabilities declaration that must follow a
// successful pairing and promotes the device.
func (m *Manager) awaitCapabilities(ctx context.Context, device *Device) error {
	frame, err := readTimed(ctx, device.conn)
	if err != nil {
		return fmt.Errorf("read capabilities: %w", err)
	}

	env, err := decodeEnvelope(frame)
	if err != nil {
		return err
	}
	if env.Type != MsgCapabilities {
		return fmt.Errorf("expected capabilities, got %s", env.Type)
	}

	decl, err := decodePayload[CapabilitiesDeclaration](env)
	if err != nil {
		return err
	}

	device.promote(decl.Capabilities)
	return nil
}

// pumpFrames consumes frames until the connection drops. Every valid
// frame counts as liveness for the heartbeat sweep.
func (m *Manager) pumpFrames(ctx context.Context, p peer, device *Device) {
	for {
		_, frame, err := device.conn.Read(ctx)
		if err != nil {
			return
		}

		env, err := decodeEnvelope(frame)
		if err != nil {
			m.logger.Warn("invalid frame from device", "device_id", device.ID, "error", err)
			continue
		}

		device.touch(time.Now())
		m.dispatchFrame(ctx, p, device, env)
	}
}

func (m *Manager) dispatchFrame(ctx context.Context, p peer, device *Device, env Envelope) {
	switch env.Type {
	case MsgHeartbeat:
		p.ackHeartbeat(ctx, env.ID)

	case MsgToolResponse:
		resp, err := decodePayload[ToolResponse](env)
		if err != nil {
			m.logger.Warn("invalid tool_response", "device_id", device.ID, "error", err)
			return
		}
		device.deliver(env.ID, resp)

	default:
		m.logger.Warn("unexpected frame type", "device_id", device.ID, "type", env.Type)
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweepStale(now)
		}
	}
}

// sweepStale cuts off paired devices that stopped sending frames. The
// store entry stays until the read loop notices the closed socket and
// removes it.
func (m *Manager) sweepStale(now time.Time) {
	threshold := m.heartbeat * missedBeatsLimit

	m.store.Range(func(_ string, d *Device) bool {
		if lastSeen, cut := d.cutIfStale(now, threshold); cut {
			m.logger.Warn("device heartbeat timeout, disconnecting",
				"device_id", d.ID,
				"last_seen", lastSeen,
			)
		}
		return true
	})
}

// RegisterDeviceTools registers one tool per capability the companion
// protocol understands. Tools resolve their target device at call time,
// so registration does not require anything to be paired yet.
func (m *Manager) RegisterDeviceTools(registry *tool.Registry) error {
	specs := []DeviceTool{
		{name: "node.camera.snap", description: "Take a photo using the connected device's camera", capability: CapCamera, schema: emptySchema},
		{name: "node.screen.capture", description: "Capture a screenshot from the connected device", capability: CapScreen, schema: emptySchema},
		{name: "node.location", description: "Get the current GPS location of the connected device", capability: CapLocation, schema: emptySchema},
		{name: "node.notification", description: "Send a notification to the connected device", capability: CapNotification, schema: notifySchema},
		{name: "node.clipboard.read", description: "Read the clipboard content from the connected device", capability: CapClipboard, schema: emptySchema},
	}

	for _, dt := range specs {
		dt.store = m.store
		dt.timeout = m.toolTimeout
		if err := registry.Register(&dt); err != nil {
			return fmt.Errorf("register tool %s: %w", dt.name, err)
		}
	}
	return nil
}
