// Uptime Kuma speaks socket.io v4 over websocket. There is no maintained Go
// client for that protocol, so the packet layer is implemented here directly
// on top of gorilla/websocket: engine.io framing (open/ping/pong/message)
// with socket.io event and ack packets inside the message frames.
package kuma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// engine.io packet types (first byte of every frame).
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// socket.io packet types (second byte, inside an engine.io message).
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// sioPacket is a decoded socket.io packet.
type sioPacket struct {
	Type  byte
	AckID int
	HasID bool
	Args  []json.RawMessage
}

// encodeEventPacket builds the wire form of an event emit with an ack id:
// "42<id>[\"event\",args...]".
func encodeEventPacket(ackID int, event string, args []json.RawMessage) (string, error) {
	payload := make([]json.RawMessage, 0, len(args)+1)
	name, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	payload = append(payload, name)
	payload = append(payload, args...)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%c%c%d%s", eioMessage, sioEvent, ackID, body), nil
}

// decodeSocketPacket parses the socket.io layer of a message frame (the
// leading engine.io '4' already removed).
func decodeSocketPacket(data string) (sioPacket, error) {
	if len(data) == 0 {
		return sioPacket{}, fmt.Errorf("empty socket.io packet")
	}
	pkt := sioPacket{Type: data[0]}
	rest := data[1:]

	// Optional namespace ("/name,"); Uptime Kuma uses the default namespace
	// but be tolerant.
	if strings.HasPrefix(rest, "/") {
		if idx := strings.Index(rest, ","); idx >= 0 {
			rest = rest[idx+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return sioPacket{}, err
		}
		pkt.AckID = id
		pkt.HasID = true
		rest = rest[digits:]
	}

	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &pkt.Args); err != nil {
			// CONNECT payloads are a bare object, not an array.
			if pkt.Type == sioConnect || pkt.Type == sioConnectError {
				pkt.Args = []json.RawMessage{json.RawMessage(rest)}
				return pkt, nil
			}
			return sioPacket{}, fmt.Errorf("invalid socket.io payload: %w", err)
		}
	}
	return pkt, nil
}

// socketIO is one websocket-backed socket.io session. A single writer goes
// through writeMu; one reader goroutine dispatches events and acks.
type socketIO struct {
	conn    *websocket.Conn
	logger  *zap.Logger
	onEvent func(event string, args []json.RawMessage)

	writeMu sync.Mutex

	ackMu   sync.Mutex
	acks    map[int]chan sioPacket
	nextAck int

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	pingTimeout  time.Duration
	pingInterval time.Duration
}

// dialSocketIO connects, completes the engine.io and socket.io handshakes,
// and starts the read loop. onEvent is invoked from its own goroutine per
// event so handlers may issue calls of their own.
func dialSocketIO(ctx context.Context, cfg *Config, onEvent func(string, []json.RawMessage), logger *zap.Logger) (*socketIO, error) {
	endpoint, err := cfg.socketURL()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	tlsConfig, err := cfg.tlsClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
		TLSClientConfig:  tlsConfig,
		Proxy:            http.ProxyFromEnvironment,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, endpoint.String(), cfg.headerMap())
	if err != nil {
		timeout := dialCtx.Err() != nil
		return nil, &TransportError{Op: "connect", Timeout: timeout, Err: err}
	}

	s := &socketIO{
		conn:    conn,
		logger:  logger,
		onEvent: onEvent,
		acks:    make(map[int]chan sioPacket),
		closed:  make(chan struct{}),
	}

	if err := s.handshake(cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

// handshake consumes the engine.io open packet and negotiates the default
// socket.io namespace.
func (s *socketIO) handshake(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	_ = s.conn.SetReadDeadline(deadline)

	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		return &TransportError{Op: "handshake", Err: err}
	}
	if len(frame) == 0 || frame[0] != eioOpen {
		return &TransportError{Op: "handshake", Err: fmt.Errorf("expected open packet, got %q", frame)}
	}
	var hs handshake
	if err := json.Unmarshal(frame[1:], &hs); err != nil {
		return &TransportError{Op: "handshake", Err: err}
	}
	s.pingInterval = time.Duration(hs.PingInterval) * time.Millisecond
	s.pingTimeout = time.Duration(hs.PingTimeout) * time.Millisecond
	if s.pingInterval == 0 {
		s.pingInterval = 25 * time.Second
	}
	if s.pingTimeout == 0 {
		s.pingTimeout = 20 * time.Second
	}

	if err := s.write(string([]byte{eioMessage, sioConnect})); err != nil {
		return err
	}

	for {
		_ = s.conn.SetReadDeadline(deadline)
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return &TransportError{Op: "handshake", Err: err}
		}
		msg := string(frame)
		if len(msg) < 2 || msg[0] != eioMessage {
			continue
		}
		switch msg[1] {
		case sioConnect:
			return nil
		case sioConnectError:
			return &TransportError{Op: "handshake", Err: fmt.Errorf("namespace rejected: %s", msg[2:])}
		}
	}
}

func (s *socketIO) write(packet string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(packet)); err != nil {
		s.close(err)
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (s *socketIO) readLoop() {
	for {
		// A healthy server pings every pingInterval; allow one full
		// interval plus the pong grace before declaring the link dead.
		_ = s.conn.SetReadDeadline(time.Now().Add(s.pingInterval + s.pingTimeout))
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.close(err)
			return
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case eioPing:
			if err := s.write(string([]byte{eioPong})); err != nil {
				return
			}
		case eioClose:
			s.close(fmt.Errorf("server closed the session"))
			return
		case eioMessage:
			s.handleMessage(string(frame[1:]))
		}
	}
}

func (s *socketIO) handleMessage(data string) {
	pkt, err := decodeSocketPacket(data)
	if err != nil {
		s.logger.Warn("discarding malformed socket.io packet", zap.Error(err))
		return
	}

	switch pkt.Type {
	case sioEvent:
		if len(pkt.Args) == 0 {
			return
		}
		var event string
		if err := json.Unmarshal(pkt.Args[0], &event); err != nil {
			s.logger.Warn("discarding event with non-string name", zap.Error(err))
			return
		}
		args := pkt.Args[1:]
		go s.onEvent(event, args)
	case sioAck:
		s.ackMu.Lock()
		ch, ok := s.acks[pkt.AckID]
		delete(s.acks, pkt.AckID)
		s.ackMu.Unlock()
		if ok {
			ch <- pkt
		}
	case sioDisconnect:
		s.close(fmt.Errorf("server disconnected the namespace"))
	}
}

// Emit sends an event and waits for its acknowledgement.
func (s *socketIO) Emit(ctx context.Context, event string, args []json.RawMessage, timeout time.Duration) ([]json.RawMessage, error) {
	select {
	case <-s.closed:
		return nil, &TransportError{Op: event, Err: ErrDisconnected}
	default:
	}

	s.ackMu.Lock()
	s.nextAck++
	id := s.nextAck
	ch := make(chan sioPacket, 1)
	s.acks[id] = ch
	s.ackMu.Unlock()

	packet, err := encodeEventPacket(id, event, args)
	if err != nil {
		return nil, &TransportError{Op: event, Err: err}
	}
	if err := s.write(packet); err != nil {
		s.dropAck(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pkt := <-ch:
		return pkt.Args, nil
	case <-timer.C:
		s.dropAck(id)
		return nil, &TransportError{Op: event, Timeout: true}
	case <-ctx.Done():
		s.dropAck(id)
		return nil, &TransportError{Op: event, Err: ctx.Err()}
	case <-s.closed:
		return nil, &TransportError{Op: event, Err: s.closeErr}
	}
}

func (s *socketIO) dropAck(id int) {
	s.ackMu.Lock()
	delete(s.acks, id)
	s.ackMu.Unlock()
}

func (s *socketIO) close(err error) {
	s.closeOnce.Do(func() {
		s.closeErr = err
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Close shuts the session down cleanly.
func (s *socketIO) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.close(nil)
	return nil
}

// Done reports session termination.
func (s *socketIO) Done() <-chan struct{} { return s.closed }
