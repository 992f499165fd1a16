// Package kuma is a client library for the Uptime Kuma socket.io API. It is
// shared by the autokuma reconciler and the kuma CLI; each caller builds its
// own Client, there are no package-level sessions.
package kuma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// Client is a session with one Uptime Kuma server. The server pushes full
// entity lists over the socket; Client caches them and serves list reads
// from the cache, while mutations go through acknowledged calls.
type Client struct {
	cfg    Config
	logger *zap.Logger
	http   *http.Client

	sockMu sync.Mutex
	sock   *socketIO

	// callMu serializes RPCs: the protocol pairs requests and acks on a
	// single connection and the server is sensitive to interleaved writes.
	callMu sync.Mutex

	mu            sync.Mutex
	monitors      MonitorList
	notifications []Notification
	dockerHosts   []DockerHost
	statusPages   StatusPageList
	maintenances  MaintenanceList
	ready         map[string]bool
	loggedIn      bool
	authToken     string
}

var readyEvents = []string{
	"monitorList", "notificationList", "dockerHostList", "statusPageList", "maintenanceList",
}

// Connect establishes a session: websocket dial, wait for the server's
// initial broadcasts, and log in (token first, then credentials).
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	cfg.applyDefaults()

	tlsConfig, err := cfg.tlsClientConfig()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		http: &http.Client{
			Timeout:   cfg.CallTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		ready:     make(map[string]bool),
		authToken: cfg.AuthToken,
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) dial(ctx context.Context) error {
	sock, err := dialSocketIO(ctx, &c.cfg, c.handleEvent, c.logger)
	if err != nil {
		return err
	}

	c.sockMu.Lock()
	c.sock = sock
	c.sockMu.Unlock()

	c.mu.Lock()
	c.ready = make(map[string]bool)
	c.loggedIn = false
	c.mu.Unlock()

	// The server only starts broadcasting after a successful login, which
	// the "info" event handler performs. Poll readiness with a widening
	// backoff, as the original client does.
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	for i := 0; time.Now().Before(deadline); i++ {
		if c.isReady() {
			c.logger.Debug("kuma session ready")
			return nil
		}
		select {
		case <-ctx.Done():
			c.Disconnect()
			return &TransportError{Op: "connect", Err: ctx.Err()}
		case <-sock.Done():
			c.Disconnect()
			return &TransportError{Op: "connect", Err: fmt.Errorf("connection closed during setup")}
		case <-time.After(time.Duration(200*(i+1)) * time.Millisecond):
		}
	}

	c.Disconnect()
	if c.isLoggedIn() {
		return &TransportError{Op: "connect", Timeout: true}
	}
	return &AuthError{Message: "server did not accept the session before the connect timeout"}
}

// EnsureConnected redials if the session dropped since the last call.
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.sockMu.Lock()
	sock := c.sock
	c.sockMu.Unlock()

	if sock != nil {
		select {
		case <-sock.Done():
		default:
			return nil
		}
	}
	c.logger.Info("kuma connection lost, reconnecting")
	return c.dial(ctx)
}

// Disconnect closes the session.
func (c *Client) Disconnect() {
	c.sockMu.Lock()
	sock := c.sock
	c.sock = nil
	c.sockMu.Unlock()
	if sock != nil {
		_ = sock.Close()
	}
}

// AuthToken returns the session token obtained during login, for caching.
func (c *Client) AuthToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authToken
}

func (c *Client) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, event := range readyEvents {
		if !c.ready[event] {
			return false
		}
	}
	return true
}

func (c *Client) isLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// handleEvent runs on its own goroutine per incoming broadcast.
func (c *Client) handleEvent(event string, args []json.RawMessage) {
	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}

	switch event {
	case "info":
		if err := c.loginOnInfo(); err != nil {
			c.logger.Warn("login failed", zap.Error(err))
		}
	case "autoLogin":
		c.mu.Lock()
		c.loggedIn = true
		c.mu.Unlock()
		c.logger.Debug("logged in via autoLogin")
	case "monitorList":
		var list MonitorList
		if err := json.Unmarshal(payload, &list); err != nil {
			c.logger.Warn("failed to decode monitorList", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.monitors = list
		c.ready[event] = true
		c.mu.Unlock()
	case "notificationList":
		var list []Notification
		if err := json.Unmarshal(payload, &list); err != nil {
			c.logger.Warn("failed to decode notificationList", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.notifications = list
		c.ready[event] = true
		c.mu.Unlock()
	case "dockerHostList":
		var list []DockerHost
		if err := json.Unmarshal(payload, &list); err != nil {
			c.logger.Warn("failed to decode dockerHostList", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.dockerHosts = list
		c.ready[event] = true
		c.mu.Unlock()
	case "statusPageList":
		var list StatusPageList
		if err := json.Unmarshal(payload, &list); err != nil {
			c.logger.Warn("failed to decode statusPageList", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.statusPages = list
		c.ready[event] = true
		c.mu.Unlock()
	case "maintenanceList":
		var list MaintenanceList
		if err := json.Unmarshal(payload, &list); err != nil {
			c.logger.Warn("failed to decode maintenanceList", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.maintenances = list
		c.ready[event] = true
		c.mu.Unlock()
	case "updateMonitorIntoList":
		var list MonitorList
		if err := json.Unmarshal(payload, &list); err != nil {
			return
		}
		c.mu.Lock()
		if c.monitors == nil {
			c.monitors = make(MonitorList)
		}
		for id, monitor := range list {
			c.monitors[id] = monitor
		}
		c.mu.Unlock()
	case "deleteMonitorFromList":
		var id Int
		if err := json.Unmarshal(payload, &id); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.monitors, strconv.Itoa(int(id)))
		c.mu.Unlock()
	}
}

type loginResponse struct {
	OK            bool    `json:"ok"`
	Msg           *string `json:"msg"`
	Token         *string `json:"token"`
	TokenRequired *bool   `json:"tokenRequired"`
}

// loginOnInfo performs the login sequence triggered by the server's info
// broadcast: cached token first, then credentials with an optional TOTP.
func (c *Client) loginOnInfo() error {
	if c.isLoggedIn() {
		return nil
	}

	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()

	if token != "" {
		if err := c.LoginByToken(context.Background(), token); err == nil {
			return nil
		}
		c.logger.Warn("cached auth token rejected, falling back to credentials")
		c.mu.Lock()
		c.authToken = ""
		c.mu.Unlock()
	}

	if c.cfg.Username == "" || c.cfg.Password == "" {
		return &AuthError{Message: "no usable auth token and no credentials configured"}
	}

	mfa, err := c.mfaToken()
	if err != nil {
		return err
	}
	return c.Login(context.Background(), c.cfg.Username, c.cfg.Password, mfa)
}

// mfaToken derives a single-use TOTP code from the configured secret, or
// falls back to the literal mfa_token.
func (c *Client) mfaToken() (string, error) {
	if c.cfg.MFASecret == "" {
		return c.cfg.MFAToken, nil
	}
	secret := c.cfg.MFASecret
	if strings.HasPrefix(secret, "otpauth://") {
		key, err := otp.NewKeyFromURL(secret)
		if err != nil {
			return "", &AuthError{Message: fmt.Sprintf("invalid mfa_secret url: %v", err)}
		}
		secret = key.Secret()
	}
	code, err := totp.GenerateCode(strings.ToUpper(secret), time.Now())
	if err != nil {
		return "", &AuthError{Message: fmt.Sprintf("cannot derive totp code: %v", err)}
	}
	return code, nil
}

// Login authenticates with username and password plus an optional 2FA code.
func (c *Client) Login(ctx context.Context, username, password, mfaToken string) error {
	payload := map[string]any{
		"username": username,
		"password": password,
	}
	if mfaToken != "" {
		payload["token"] = mfaToken
	}

	var resp loginResponse
	if err := c.call(ctx, "login", []any{payload}, "", false, &resp); err != nil {
		return err
	}
	switch {
	case resp.TokenRequired != nil && *resp.TokenRequired:
		return &AuthError{Message: "2FA token required"}
	case resp.OK && resp.Token != nil:
		c.mu.Lock()
		c.loggedIn = true
		c.authToken = *resp.Token
		c.mu.Unlock()
		c.logger.Debug("logged in", zap.String("username", username))
		return nil
	case resp.Msg != nil:
		return &AuthError{Message: *resp.Msg}
	default:
		return &AuthError{Message: "unexpected login response"}
	}
}

// LoginByToken authenticates with a previously issued session token.
func (c *Client) LoginByToken(ctx context.Context, token string) error {
	var resp loginResponse
	if err := c.call(ctx, "loginByToken", []any{token}, "", false, &resp); err != nil {
		return err
	}
	if !resp.OK {
		msg := "token rejected"
		if resp.Msg != nil {
			msg = *resp.Msg
		}
		return &AuthError{Message: msg}
	}
	c.mu.Lock()
	c.loggedIn = true
	c.authToken = token
	c.mu.Unlock()
	return nil
}

// Logout ends the authenticated session without closing the socket.
func (c *Client) Logout(ctx context.Context) error {
	var ignored json.RawMessage
	err := c.call(ctx, "logout", nil, "", false, &ignored)
	c.mu.Lock()
	c.loggedIn = false
	c.mu.Unlock()
	return err
}

// call emits an acknowledged request and extracts the result. resultPtr is a
// single-level JSON pointer into the first response argument ("" for the
// whole object); verify enforces the {ok, msg} envelope.
func (c *Client) call(ctx context.Context, method string, args []any, resultPtr string, verify bool, out any) error {
	c.sockMu.Lock()
	sock := c.sock
	c.sockMu.Unlock()
	if sock == nil {
		return &TransportError{Op: method, Err: ErrDisconnected}
	}

	raw := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("encoding %s argument: %w", method, err)
		}
		raw = append(raw, data)
	}

	c.callMu.Lock()
	response, err := sock.Emit(ctx, method, raw, c.cfg.CallTimeout)
	c.callMu.Unlock()
	if err != nil {
		return err
	}

	return extractResult(method, response, resultPtr, verify, out)
}

// extractResult interprets the server's ack payload.
func extractResult(method string, response []json.RawMessage, resultPtr string, verify bool, out any) error {
	if len(response) == 0 {
		// Some verbs (logout) acknowledge without a payload.
		if !verify && resultPtr == "" {
			return nil
		}
		return &TransportError{Op: method, Err: fmt.Errorf("empty response")}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(response[0], &envelope); err != nil {
		return &TransportError{Op: method, Err: fmt.Errorf("malformed response: %w", err)}
	}

	if verify {
		var ok bool
		if raw, present := envelope["ok"]; present {
			_ = json.Unmarshal(raw, &ok)
		}
		if !ok {
			msg := "unknown error"
			if raw, present := envelope["msg"]; present {
				var s string
				if json.Unmarshal(raw, &s) == nil {
					msg = s
				}
			}
			return &RemoteError{Op: method, Message: msg}
		}
	}

	if resultPtr == "" {
		return json.Unmarshal(response[0], out)
	}
	field := strings.TrimPrefix(resultPtr, "/")
	raw, present := envelope[field]
	if !present {
		return &TransportError{Op: method, Err: fmt.Errorf("response missing %s", resultPtr)}
	}
	return json.Unmarshal(raw, out)
}

// --- monitors ---

// GetMonitors returns the cached monitor list.
func (c *Client) GetMonitors() (MonitorList, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(MonitorList, len(c.monitors))
	for id, monitor := range c.monitors {
		out[id] = monitor
	}
	return out, nil
}

// GetMonitor fetches a single monitor from the server.
func (c *Client) GetMonitor(ctx context.Context, id int) (Monitor, error) {
	var monitor Monitor
	err := c.call(ctx, "getMonitor", []any{id}, "/monitor", true, &monitor)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && strings.Contains(remote.Message, "Cannot read properties of null") {
			return Monitor{}, &IDNotFoundError{Kind: "monitor", ID: strconv.Itoa(id)}
		}
		return Monitor{}, err
	}
	return monitor, nil
}

// AddMonitor creates a monitor. The server's add handler ignores several
// fields, so a follow-up edit applies the full record, then the tag bindings
// are reconciled; create_paused triggers an immediate pause.
func (c *Client) AddMonitor(ctx context.Context, monitor *Monitor) error {
	if err := c.verifyMonitorRefs(monitor); err != nil {
		return err
	}

	payload, err := monitor.wirePayload()
	if err != nil {
		return err
	}
	var id Int
	if err := c.call(ctx, "add", []any{payload}, "/monitorID", true, &id); err != nil {
		return err
	}
	monitor.ID = &id

	if err := c.EditMonitor(ctx, monitor); err != nil {
		return err
	}

	c.mu.Lock()
	if c.monitors == nil {
		c.monitors = make(MonitorList)
	}
	c.monitors[strconv.Itoa(int(id))] = *monitor
	c.mu.Unlock()

	if monitor.CreatePaused != nil && bool(*monitor.CreatePaused) {
		return c.PauseMonitor(ctx, int(id))
	}
	return nil
}

// EditMonitor saves a monitor and reconciles its tag bindings.
func (c *Client) EditMonitor(ctx context.Context, monitor *Monitor) error {
	if err := c.verifyMonitorRefs(monitor); err != nil {
		return err
	}

	payload, err := monitor.wirePayload()
	if err != nil {
		return err
	}
	var id Int
	if err := c.call(ctx, "editMonitor", []any{payload}, "/monitorID", true, &id); err != nil {
		return err
	}
	monitor.ID = &id

	return c.updateMonitorTags(ctx, int(id), monitor.Tags)
}

// DeleteMonitor removes a monitor by id.
func (c *Client) DeleteMonitor(ctx context.Context, id int) error {
	var ok bool
	if err := c.call(ctx, "deleteMonitor", []any{id}, "/ok", true, &ok); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.monitors, strconv.Itoa(id))
	c.mu.Unlock()
	return nil
}

// PauseMonitor pauses a monitor by id.
func (c *Client) PauseMonitor(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "pauseMonitor", []any{id}, "/ok", true, &ok)
}

// ResumeMonitor resumes a paused monitor by id.
func (c *Client) ResumeMonitor(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "resumeMonitor", []any{id}, "/ok", true, &ok)
}

// verifyMonitorRefs checks that numeric references point at entities the
// server actually has, so a bad reference fails fast instead of producing a
// broken monitor.
func (c *Client) verifyMonitorRefs(monitor *Monitor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if monitor.Parent != nil {
		found := false
		for _, existing := range c.monitors {
			if existing.ID != nil && *existing.ID == *monitor.Parent {
				found = true
				break
			}
		}
		if !found {
			return &InvalidReferenceError{Field: "parent", Ref: strconv.Itoa(int(*monitor.Parent))}
		}
	}

	if len(monitor.NotificationIDList) > 0 {
		available := make(map[int]struct{}, len(c.notifications))
		for _, n := range c.notifications {
			if n.ID != nil {
				available[int(*n.ID)] = struct{}{}
			}
		}
		for idStr := range monitor.NotificationIDList {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				return &InvalidReferenceError{Field: "notification", Ref: idStr}
			}
			if _, ok := available[id]; !ok {
				return &InvalidReferenceError{Field: "notification", Ref: idStr}
			}
		}
	}

	if raw, ok := monitor.Extra["docker_host"]; ok {
		var hostID Int
		if err := json.Unmarshal(raw, &hostID); err == nil {
			found := false
			for _, host := range c.dockerHosts {
				if host.ID != nil && *host.ID == hostID {
					found = true
					break
				}
			}
			if !found {
				return &InvalidReferenceError{Field: "docker_host", Ref: strconv.Itoa(int(hostID))}
			}
		}
	}

	return nil
}

// updateMonitorTags diffs the desired tag bindings against the cached state
// and issues individual add/edit/delete calls, deduplicating stale doubles.
func (c *Client) updateMonitorTags(ctx context.Context, monitorID int, tags []Tag) error {
	desired := make(map[int]Tag, len(tags))
	for _, tag := range tags {
		if tag.TagID != nil {
			desired[int(*tag.TagID)] = tag
		}
	}

	c.mu.Lock()
	cached, known := c.monitors[strconv.Itoa(monitorID)]
	c.mu.Unlock()

	if !known {
		for id, tag := range desired {
			if err := c.addMonitorTag(ctx, monitorID, id, tag.Value); err != nil {
				return err
			}
		}
		return nil
	}

	current := make(map[int]Tag, len(cached.Tags))
	duplicates := make(map[int]Tag)
	for _, tag := range cached.Tags {
		if tag.TagID == nil {
			continue
		}
		id := int(*tag.TagID)
		if _, seen := current[id]; seen {
			duplicates[id] = tag
			continue
		}
		current[id] = tag
	}

	for id, tag := range duplicates {
		if err := c.deleteMonitorTag(ctx, monitorID, id, tag.Value); err != nil {
			return err
		}
	}
	for id, tag := range current {
		if _, keep := desired[id]; !keep {
			if _, dup := duplicates[id]; dup {
				continue
			}
			if err := c.deleteMonitorTag(ctx, monitorID, id, tag.Value); err != nil {
				return err
			}
		}
	}
	for id, tag := range desired {
		existing, have := current[id]
		switch {
		case !have:
			if err := c.addMonitorTag(ctx, monitorID, id, tag.Value); err != nil {
				return err
			}
		case !strEqual(existing.Value, tag.Value):
			if err := c.editMonitorTag(ctx, monitorID, id, tag.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) addMonitorTag(ctx context.Context, monitorID, tagID int, value *string) error {
	var ok bool
	return c.call(ctx, "addMonitorTag", []any{tagID, monitorID, deref(value)}, "/ok", true, &ok)
}

func (c *Client) editMonitorTag(ctx context.Context, monitorID, tagID int, value *string) error {
	var ok bool
	return c.call(ctx, "editMonitorTag", []any{tagID, monitorID, deref(value)}, "/ok", true, &ok)
}

func (c *Client) deleteMonitorTag(ctx context.Context, monitorID, tagID int, value *string) error {
	var ok bool
	return c.call(ctx, "deleteMonitorTag", []any{tagID, monitorID, deref(value)}, "/ok", true, &ok)
}

// --- tags ---

// GetTags fetches the tag definitions from the server.
func (c *Client) GetTags(ctx context.Context) ([]TagDefinition, error) {
	var tags []TagDefinition
	err := c.call(ctx, "getTags", nil, "/tags", true, &tags)
	return tags, err
}

// AddTag creates a tag and fills in its server id.
func (c *Client) AddTag(ctx context.Context, tag *TagDefinition) error {
	return c.call(ctx, "addTag", []any{tag}, "/tag", true, tag)
}

// EditTag saves a tag definition.
func (c *Client) EditTag(ctx context.Context, tag *TagDefinition) error {
	return c.call(ctx, "editTag", []any{tag}, "/tag", true, tag)
}

// DeleteTag removes a tag by id.
func (c *Client) DeleteTag(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "deleteTag", []any{id}, "/ok", true, &ok)
}

// --- notifications ---

// GetNotifications returns the cached notification list.
func (c *Client) GetNotifications() ([]Notification, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, len(c.notifications))
	copy(out, c.notifications)
	return out, nil
}

// AddNotification creates a notification provider; the server uses one saved
// verb for create and update, distinguished by the id argument.
func (c *Client) AddNotification(ctx context.Context, notification *Notification) error {
	return c.EditNotification(ctx, notification)
}

// EditNotification saves a notification provider. The provider-specific
// config blob is flattened into the envelope, as the server expects.
func (c *Client) EditNotification(ctx context.Context, notification *Notification) error {
	payload := make(map[string]any, len(notification.Config)+4)
	for key, value := range notification.Config {
		payload[key] = value
	}
	if notification.Name != nil {
		payload["name"] = *notification.Name
	}
	if notification.Active != nil {
		payload["active"] = bool(*notification.Active)
	}
	if notification.IsDefault != nil {
		payload["isDefault"] = bool(*notification.IsDefault)
	}

	var idArg any
	if notification.ID != nil {
		idArg = int(*notification.ID)
	}
	var id Int
	if err := c.call(ctx, "addNotification", []any{payload, idArg}, "/id", true, &id); err != nil {
		return err
	}
	notification.ID = &id
	return nil
}

// DeleteNotification removes a notification provider by id.
func (c *Client) DeleteNotification(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "deleteNotification", []any{id}, "/ok", true, &ok)
}

// --- docker hosts ---

// GetDockerHosts returns the cached docker host list.
func (c *Client) GetDockerHosts() ([]DockerHost, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DockerHost, len(c.dockerHosts))
	copy(out, c.dockerHosts)
	return out, nil
}

// AddDockerHost registers a docker host; add and edit share a verb.
func (c *Client) AddDockerHost(ctx context.Context, host *DockerHost) error {
	return c.EditDockerHost(ctx, host)
}

// EditDockerHost saves a docker host.
func (c *Client) EditDockerHost(ctx context.Context, host *DockerHost) error {
	var idArg any
	if host.ID != nil {
		idArg = int(*host.ID)
	}
	var id Int
	if err := c.call(ctx, "addDockerHost", []any{host, idArg}, "/id", true, &id); err != nil {
		return err
	}
	host.ID = &id
	return nil
}

// DeleteDockerHost removes a docker host by id.
func (c *Client) DeleteDockerHost(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "deleteDockerHost", []any{id}, "/ok", true, &ok)
}

// TestDockerHost asks the server to probe a docker host configuration.
func (c *Client) TestDockerHost(ctx context.Context, host *DockerHost) (string, error) {
	var msg string
	err := c.call(ctx, "testDockerHost", []any{host}, "/msg", true, &msg)
	return msg, err
}

// --- status pages ---

// GetStatusPages returns the cached status page list, keyed by slug.
func (c *Client) GetStatusPages() (StatusPageList, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(StatusPageList, len(c.statusPages))
	for slug, page := range c.statusPages {
		out[slug] = page
	}
	return out, nil
}

// GetStatusPage fetches a status page's config plus its public group list
// (which the socket API does not return; it comes from the HTTP endpoint).
func (c *Client) GetStatusPage(ctx context.Context, slug string) (StatusPage, error) {
	var page StatusPage
	err := c.call(ctx, "getStatusPage", []any{slug}, "/config", true, &page)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && strings.Contains(remote.Message, "Cannot read properties of null") {
			return StatusPage{}, &IDNotFoundError{Kind: "status page", ID: slug}
		}
		return StatusPage{}, err
	}

	groups, err := c.publicGroupList(ctx, slug)
	if err != nil {
		return StatusPage{}, err
	}
	page.PublicGroupList = groups
	return page, nil
}

func (c *Client) publicGroupList(ctx context.Context, slug string) ([]PublicGroup, error) {
	endpoint, err := c.cfg.httpURL("api/status-page/" + slug)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range c.cfg.headerMap() {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "getStatusPage", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "getStatusPage", Err: err}
	}
	var decoded struct {
		PublicGroupList []PublicGroup `json:"publicGroupList"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransportError{Op: "getStatusPage", Err: err}
	}
	return decoded.PublicGroupList, nil
}

// AddStatusPage creates a status page, then saves its full config.
func (c *Client) AddStatusPage(ctx context.Context, page *StatusPage) error {
	var ok bool
	if err := c.call(ctx, "addStatusPage", []any{deref(page.Title), deref(page.Slug)}, "/ok", true, &ok); err != nil {
		return err
	}
	if !ok {
		return &RemoteError{Op: "addStatusPage", Message: "unable to add status page"}
	}
	return c.EditStatusPage(ctx, page)
}

// EditStatusPage saves a status page's config, icon, and public group list.
func (c *Client) EditStatusPage(ctx context.Context, page *StatusPage) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}
	delete(config, "monitor_names")
	icon := "/icon.svg"
	if page.Icon != nil {
		icon = *page.Icon
	}
	config["logo"] = icon

	groups := page.PublicGroupList
	if groups == nil {
		groups = []PublicGroup{}
	}

	var ok bool
	return c.call(ctx, "saveStatusPage",
		[]any{deref(page.Slug), config, icon, groups}, "/ok", true, &ok)
}

// DeleteStatusPage removes a status page by slug.
func (c *Client) DeleteStatusPage(ctx context.Context, slug string) error {
	var ok bool
	return c.call(ctx, "deleteStatusPage", []any{slug}, "/ok", true, &ok)
}

// --- maintenances ---

// GetMaintenances returns the cached maintenance list.
func (c *Client) GetMaintenances() (MaintenanceList, error) {
	if !c.isReady() {
		return nil, ErrNotReady
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(MaintenanceList, len(c.maintenances))
	for id, maintenance := range c.maintenances {
		out[id] = maintenance
	}
	return out, nil
}

// GetMaintenance fetches one maintenance window including its bindings.
func (c *Client) GetMaintenance(ctx context.Context, id int) (Maintenance, error) {
	var maintenance Maintenance
	err := c.call(ctx, "getMaintenance", []any{id}, "/maintenance", true, &maintenance)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && strings.Contains(remote.Message, "Cannot read properties of null") {
			return Maintenance{}, &IDNotFoundError{Kind: "maintenance", ID: strconv.Itoa(id)}
		}
		return Maintenance{}, err
	}

	if maintenance.Monitors == nil {
		monitors, err := c.maintenanceMonitors(ctx, id)
		if err != nil {
			return Maintenance{}, err
		}
		maintenance.Monitors = monitors
	}
	if maintenance.StatusPages == nil {
		pages, err := c.maintenanceStatusPages(ctx, id)
		if err != nil {
			return Maintenance{}, err
		}
		maintenance.StatusPages = pages
	}
	return maintenance, nil
}

func (c *Client) maintenanceMonitors(ctx context.Context, id int) ([]MaintenanceMonitor, error) {
	var monitors []MaintenanceMonitor
	err := c.call(ctx, "getMonitorMaintenance", []any{id}, "/monitors", true, &monitors)
	return monitors, err
}

func (c *Client) maintenanceStatusPages(ctx context.Context, id int) ([]MaintenanceStatusPage, error) {
	var pages []MaintenanceStatusPage
	err := c.call(ctx, "getMaintenanceStatusPage", []any{id}, "/statusPages", true, &pages)
	return pages, err
}

// AddMaintenance creates a maintenance window and applies its bindings; the
// server shares the add verb for create and update.
func (c *Client) AddMaintenance(ctx context.Context, maintenance *Maintenance) error {
	return c.EditMaintenance(ctx, maintenance)
}

// EditMaintenance saves a maintenance window and its bindings.
func (c *Client) EditMaintenance(ctx context.Context, maintenance *Maintenance) error {
	payload := maintenance.Clone()
	payload.StripLocal()

	var id Int
	if err := c.call(ctx, "addMaintenance", []any{payload}, "/maintenanceID", true, &id); err != nil {
		return err
	}
	maintenance.ID = &id

	if maintenance.Monitors != nil {
		var ok bool
		if err := c.call(ctx, "addMonitorMaintenance", []any{int(id), maintenance.Monitors}, "/ok", true, &ok); err != nil {
			return err
		}
	}
	if maintenance.StatusPages != nil {
		var ok bool
		if err := c.call(ctx, "addMaintenanceStatusPage", []any{int(id), maintenance.StatusPages}, "/ok", true, &ok); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMaintenance removes a maintenance window by id.
func (c *Client) DeleteMaintenance(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "deleteMaintenance", []any{id}, "/ok", true, &ok)
}

// PauseMaintenance pauses a maintenance window by id.
func (c *Client) PauseMaintenance(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "pauseMaintenance", []any{id}, "/ok", true, &ok)
}

// ResumeMaintenance resumes a paused maintenance window by id.
func (c *Client) ResumeMaintenance(ctx context.Context, id int) error {
	var ok bool
	return c.call(ctx, "resumeMaintenance", []any{id}, "/ok", true, &ok)
}

// --- database ---

// GetDatabaseSize returns the server database size in bytes (SQLite only).
func (c *Client) GetDatabaseSize(ctx context.Context) (uint64, error) {
	var size uint64
	err := c.call(ctx, "getDatabaseSize", nil, "/size", true, &size)
	return size, err
}

// ShrinkDatabase triggers a VACUUM on the server database (SQLite only).
func (c *Client) ShrinkDatabase(ctx context.Context) error {
	var ok bool
	return c.call(ctx, "shrinkDatabase", nil, "/ok", true, &ok)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strEqual(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
