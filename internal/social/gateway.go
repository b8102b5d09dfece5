package social

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/router-for-me/CLIPresence/internal/buildinfo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

const (
	gatewayHandshakeTimeout = 15 * time.Second
	gatewayWriteTimeout     = 10 * time.Second
	gatewayHelloTimeout     = 20 * time.Second
	maxGatewayMessageLen    = 8 << 20
)

var errGatewayClosed = errors.New("gateway session closed")

// gatewaySession owns one websocket connection to the gateway.
type gatewaySession struct {
	conn       *websocket.Conn
	client     *Client
	closed     chan struct{}
	closeOnce  sync.Once
	writeMutex sync.Mutex

	mu        sync.Mutex
	seq       int64
	hasSeq    bool
	sessionID string
	// closeErr is set by whoever closes the session first.
	closeErr  ErrorKind
	closeCode int
}

// Connect opens the gateway connection using the token stored by UpdateToken.
// Progress is reported only through the status callback.
func (c *Client) Connect() {
	c.mu.Lock()
	token, tokenType := c.token, c.tokenType
	busy := c.gateway != nil || c.status == StatusConnecting
	if !busy && token != "" {
		c.status = StatusConnecting
	}
	c.mu.Unlock()

	if busy {
		c.logger.Warn("connect called while a gateway session is active")
		return
	}
	if token == "" {
		c.logger.Error("connect called before a token was set")
		c.setStatus(StatusDisconnected, ErrorConnectionFailed, http.StatusUnauthorized)
		return
	}
	c.setStatus(StatusConnecting, ErrorNone, 0)
	go c.runGateway(token, tokenType)
}

// Disconnect closes the gateway connection if there is one.
func (c *Client) Disconnect() {
	c.mu.Lock()
	session := c.gateway
	c.mu.Unlock()
	if session == nil {
		return
	}
	c.setStatus(StatusDisconnecting, ErrorNone, 0)
	session.close(ErrorNone, websocket.CloseNormalClosure)
}

func (c *Client) gatewayDialer() *websocket.Dialer {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: gatewayHandshakeTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	settings, err := proxySettingsFor(c.cfg.ProxyURL)
	if err != nil {
		c.logger.Warnf("gateway ignores proxy-url: %v", err)
		return dialer
	}
	if settings.proxy != nil {
		dialer.Proxy = settings.proxy
	}
	if settings.dial != nil {
		dialer.Proxy = nil
		dialer.NetDialContext = settings.dial
	}
	return dialer
}

func (c *Client) runGateway(token string, tokenType AuthorizationTokenType) {
	conn, resp, err := c.gatewayDialer().DialContext(c.ctx, c.cfg.GatewayURL, nil)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		c.logger.Errorf("gateway dial failed: %v", err)
		kind := ErrorConnectionFailed
		if errors.Is(err, context.Canceled) {
			kind = ErrorConnectionCanceled
		}
		c.setStatus(StatusDisconnected, kind, code)
		return
	}

	session := &gatewaySession{conn: conn, client: c, closed: make(chan struct{})}
	conn.SetReadLimit(maxGatewayMessageLen)

	c.mu.Lock()
	c.gateway = session
	c.mu.Unlock()
	c.setStatus(StatusConnected, ErrorNone, 0)

	session.run(token, tokenType)

	c.mu.Lock()
	if c.gateway == session {
		c.gateway = nil
	}
	c.relationships = nil
	c.mu.Unlock()

	session.mu.Lock()
	kind, code := session.closeErr, session.closeCode
	session.mu.Unlock()
	c.setStatus(StatusDisconnected, kind, code)
}

// run performs the HELLO/IDENTIFY handshake and then reads frames until the session closes.
func (s *gatewaySession) run(token string, tokenType AuthorizationTokenType) {
	logger := s.client.logger

	_ = s.conn.SetReadDeadline(time.Now().Add(gatewayHelloTimeout))
	_, hello, err := s.conn.ReadMessage()
	if err != nil {
		logger.Errorf("gateway hello not received: %v", err)
		s.close(ErrorConnectionFailed, websocket.CloseProtocolError)
		return
	}
	if gjson.GetBytes(hello, "op").Int() != opHello {
		logger.Errorf("unexpected first gateway frame op=%d", gjson.GetBytes(hello, "op").Int())
		s.close(ErrorConnectionFailed, websocket.CloseProtocolError)
		return
	}
	interval := time.Duration(gjson.GetBytes(hello, "d.heartbeat_interval").Int()) * time.Millisecond
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	readTimeout := interval*2 + 5*time.Second
	_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.startHeartbeat(interval)

	if err = s.send(identifyFrame(token, tokenType)); err != nil {
		logger.Errorf("gateway identify failed: %v", err)
		s.close(ErrorConnectionFailed, websocket.CloseInternalServerErr)
		return
	}

	for {
		_, data, errRead := s.conn.ReadMessage()
		if errRead != nil {
			s.handleReadError(errRead)
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		if !s.handleFrame(data) {
			return
		}
	}
}

func (s *gatewaySession) handleReadError(err error) {
	select {
	case <-s.closed:
		// Closed locally; closeErr already describes why.
		return
	default:
	}
	code := 0
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}
	s.client.logger.Errorf("gateway read failed: %v", err)
	s.close(ErrorUnexpectedClose, code)
}

// handleFrame processes one gateway frame and reports whether reading should continue.
func (s *gatewaySession) handleFrame(data []byte) bool {
	frame := gjson.ParseBytes(data)
	if seq := frame.Get("s"); seq.Exists() && seq.Type == gjson.Number {
		s.mu.Lock()
		s.seq, s.hasSeq = seq.Int(), true
		s.mu.Unlock()
	}

	logger := s.client.logger
	switch frame.Get("op").Int() {
	case opDispatch:
		s.handleDispatch(frame.Get("t").String(), frame.Get("d"))
	case opHeartbeat:
		if err := s.send(s.heartbeatFrame()); err != nil {
			logger.Warnf("gateway heartbeat reply failed: %v", err)
		}
	case opHeartbeatAck:
		logger.Trace("gateway heartbeat acknowledged")
	case opReconnect:
		logger.Warn("gateway requested reconnect")
		s.close(ErrorUnexpectedClose, opReconnect)
		return false
	case opInvalidSession:
		logger.Error("gateway rejected the session")
		s.close(ErrorConnectionFailed, opInvalidSession)
		return false
	default:
		logger.Debugf("ignoring gateway op %d", frame.Get("op").Int())
	}
	return true
}

func (s *gatewaySession) handleDispatch(eventType string, payload gjson.Result) {
	c := s.client
	switch eventType {
	case "READY":
		s.mu.Lock()
		s.sessionID = payload.Get("session_id").String()
		s.mu.Unlock()

		var relationships []Relationship
		payload.Get("relationships").ForEach(func(_, value gjson.Result) bool {
			relationships = append(relationships, parseRelationship(value))
			return true
		})
		c.mu.Lock()
		c.relationships = relationships
		if id := payload.Get("user.id").String(); id != "" {
			c.user = RelationshipUser{ID: id, Username: payload.Get("user.username").String()}
		}
		c.mu.Unlock()
		c.logger.Infof("gateway ready with %d relationships", len(relationships))
		c.setStatus(StatusReady, ErrorNone, 0)
	case "RELATIONSHIP_ADD":
		rel := parseRelationship(payload)
		c.mu.Lock()
		replaced := false
		for i := range c.relationships {
			if c.relationships[i].ID == rel.ID {
				c.relationships[i] = rel
				replaced = true
			}
		}
		if !replaced {
			c.relationships = append(c.relationships, rel)
		}
		c.mu.Unlock()
	case "RELATIONSHIP_REMOVE":
		id := payload.Get("id").String()
		c.mu.Lock()
		kept := c.relationships[:0]
		for _, rel := range c.relationships {
			if rel.ID != id {
				kept = append(kept, rel)
			}
		}
		c.relationships = kept
		c.mu.Unlock()
	default:
		c.logger.Tracef("ignoring gateway dispatch %s", eventType)
	}
}

func parseRelationship(value gjson.Result) Relationship {
	rel := Relationship{
		ID:   value.Get("id").String(),
		Type: RelationshipType(value.Get("type").Int()),
		User: RelationshipUser{
			ID:       value.Get("user.id").String(),
			Username: value.Get("user.username").String(),
		},
	}
	if rel.User.ID == "" {
		rel.User.ID = value.Get("user_id").String()
	}
	if rel.ID == "" {
		rel.ID = rel.User.ID
	}
	return rel
}

func (s *gatewaySession) startHeartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.closed:
				return
			case <-ticker.C:
				if err := s.send(s.heartbeatFrame()); err != nil {
					s.client.logger.Warnf("gateway heartbeat failed: %v", err)
					s.close(ErrorUnexpectedClose, 0)
					return
				}
			}
		}
	}()
}

func (s *gatewaySession) heartbeatFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSeq {
		return []byte(`{"op":1,"d":null}`)
	}
	return []byte(fmt.Sprintf(`{"op":1,"d":%d}`, s.seq))
}

func (s *gatewaySession) send(frame []byte) error {
	select {
	case <-s.closed:
		return errGatewayClosed
	default:
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(gatewayWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *gatewaySession) close(kind ErrorKind, code int) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeErr, s.closeCode = kind, code
		s.mu.Unlock()
		close(s.closed)
		s.writeMutex.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMutex.Unlock()
		_ = s.conn.Close()
	})
}

func identifyFrame(token string, tokenType AuthorizationTokenType) []byte {
	frame := []byte(`{"op":2,"d":{}}`)
	frame, _ = sjson.SetBytes(frame, "d.token", authorizationHeader(tokenType, token))
	frame, _ = sjson.SetBytes(frame, "d.properties.os", runtime.GOOS)
	frame, _ = sjson.SetBytes(frame, "d.properties.browser", "cli-presence")
	frame, _ = sjson.SetBytes(frame, "d.properties.device", "cli-presence")
	frame, _ = sjson.SetBytes(frame, "d.properties.client_version", buildinfo.Version)
	return frame
}

// presenceFrame renders the presence update for activity. The nonce is echoed in logs only.
func presenceFrame(appName string, activity Activity, nonce string) []byte {
	frame := []byte(`{"op":3,"d":{"since":null,"activities":[{}],"status":"online","afk":false}}`)
	frame, _ = sjson.SetBytes(frame, "d.nonce", nonce)
	frame, _ = sjson.SetBytes(frame, "d.activities.0.name", appName)
	frame, _ = sjson.SetBytes(frame, "d.activities.0.type", int(activity.Type))
	if activity.State != "" {
		frame, _ = sjson.SetBytes(frame, "d.activities.0.state", activity.State)
	}
	if activity.Details != "" {
		frame, _ = sjson.SetBytes(frame, "d.activities.0.details", activity.Details)
	}
	return frame
}

// UpdateRichPresence publishes activity on the gateway. It fails when the session is not Ready.
func (c *Client) UpdateRichPresence(activity Activity, cb UpdatePresenceCallback) {
	c.mu.Lock()
	session, status := c.gateway, c.status
	c.mu.Unlock()

	deliver := func(result ClientResult) {
		if cb != nil {
			c.dispatch(func() { cb(result) })
		}
	}
	if session == nil || status != StatusReady {
		c.logger.Error("rich presence update requested while not ready")
		deliver(Failure(ErrNotConnected))
		return
	}

	nonce := uuid.NewString()
	frame := presenceFrame(c.cfg.ApplicationName, activity, nonce)
	go func() {
		if err := session.send(frame); err != nil {
			c.logger.Errorf("rich presence update %s failed: %v", nonce, err)
			deliver(Failure(err))
			return
		}
		c.logger.Debugf("rich presence update %s sent", nonce)
		deliver(Success())
	}()
}
