// Package cliclient implements the command-line client side of the
// control protocol: simple request/response round trips for the
// management commands, and the interactive raw-mode attach loop.
package cliclient

import (
	"fmt"
	"net"
	"time"

	"github.com/jlowzow/amux/internal/protocol"
)

// Client is a connection to the daemon's control socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("cliclient: connect: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// roundTrip writes f and reads exactly one response frame.
func (c *Client) roundTrip(f protocol.Frame) (protocol.Frame, error) {
	if err := protocol.WriteFrame(c.conn, f); err != nil {
		return protocol.Frame{}, err
	}
	return protocol.ReadFrame(c.conn)
}

func asError(f protocol.Frame) error {
	if f.Tag != protocol.TagError {
		return nil
	}
	var e protocol.Error
	if err := protocol.Unmarshal(f.Payload, &e); err != nil {
		return fmt.Errorf("cliclient: daemon error (undecodable): %w", err)
	}
	return fmt.Errorf("%s", e.Message)
}

// Ping checks that the daemon is reachable and responsive.
func (c *Client) Ping() error {
	f, err := c.roundTrip(protocol.Plain(protocol.TagPing))
	if err != nil {
		return err
	}
	if err := asError(f); err != nil {
		return err
	}
	if f.Tag != protocol.TagPong {
		return fmt.Errorf("cliclient: unexpected reply to Ping: tag %d", f.Tag)
	}
	return nil
}

// KillServer asks the daemon to shut down. It fails if sessions are still
// registered; call KillAllSessions first.
func (c *Client) KillServer() error {
	f, err := c.roundTrip(protocol.Plain(protocol.TagKillServer))
	if err != nil {
		return err
	}
	return asError(f)
}

// CreateSession creates a new session, returning the name it was assigned.
func (c *Client) CreateSession(name string, command []string, env map[string]string) (string, error) {
	var namePtr *string
	if name != "" {
		namePtr = &name
	}
	req, err := protocol.Encode(protocol.TagCreateSession, protocol.CreateSession{Name: namePtr, Command: command, Env: env})
	if err != nil {
		return "", err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return "", err
	}
	if err := asError(f); err != nil {
		return "", err
	}
	var resp protocol.SessionCreated
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// ListSessions returns every registered session.
func (c *Client) ListSessions() ([]protocol.SessionInfo, error) {
	f, err := c.roundTrip(protocol.Plain(protocol.TagListSessions))
	if err != nil {
		return nil, err
	}
	if err := asError(f); err != nil {
		return nil, err
	}
	var resp protocol.SessionList
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// GetSessionInfo returns detail for one session.
func (c *Client) GetSessionInfo(name string) (protocol.SessionInfo, error) {
	req, err := protocol.Encode(protocol.TagGetSessionInfo, protocol.GetSessionInfo{Name: name})
	if err != nil {
		return protocol.SessionInfo{}, err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return protocol.SessionInfo{}, err
	}
	if err := asError(f); err != nil {
		return protocol.SessionInfo{}, err
	}
	var resp protocol.SessionDetail
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return protocol.SessionInfo{}, err
	}
	return resp.Info, nil
}

// KillSession kills one named session.
func (c *Client) KillSession(name string) error {
	req, err := protocol.Encode(protocol.TagKillSession, protocol.KillSession{Name: name})
	if err != nil {
		return err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	return asError(f)
}

// KillAllSessions kills every session and returns the count killed.
func (c *Client) KillAllSessions() (int, error) {
	f, err := c.roundTrip(protocol.Plain(protocol.TagKillAllSessions))
	if err != nil {
		return 0, err
	}
	if err := asError(f); err != nil {
		return 0, err
	}
	var resp protocol.KilledSessions
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// HasSession reports whether a session named name is registered.
func (c *Client) HasSession(name string) (bool, error) {
	req, err := protocol.Encode(protocol.TagHasSession, protocol.HasSession{Name: name})
	if err != nil {
		return false, err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return false, err
	}
	if err := asError(f); err != nil {
		return false, err
	}
	var resp protocol.SessionExists
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// CaptureScrollback returns the last n lines of a session's scrollback.
func (c *Client) CaptureScrollback(name string, lines int) ([]byte, error) {
	req, err := protocol.Encode(protocol.TagCaptureScrollback, protocol.CaptureScrollback{Name: name, Lines: lines})
	if err != nil {
		return nil, err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := asError(f); err != nil {
		return nil, err
	}
	return f.Payload, nil
}

// SendInput sends data to a session's standard input without attaching.
func (c *Client) SendInput(name string, data []byte, newline bool) error {
	req, err := protocol.Encode(protocol.TagSendInput, protocol.SendInput{Name: name, Data: data, Newline: newline})
	if err != nil {
		return err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	return asError(f)
}

// SetEnv, GetEnv, GetAllEnv manage a session's metadata key/value store.

func (c *Client) SetEnv(name, key, value string) error {
	req, err := protocol.Encode(protocol.TagSetEnv, protocol.SetEnv{Name: name, Key: key, Value: value})
	if err != nil {
		return err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	return asError(f)
}

func (c *Client) GetEnv(name, key string) (string, bool, error) {
	req, err := protocol.Encode(protocol.TagGetEnv, protocol.GetEnv{Name: name, Key: key})
	if err != nil {
		return "", false, err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return "", false, err
	}
	if err := asError(f); err != nil {
		return "", false, err
	}
	var resp protocol.EnvValue
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

func (c *Client) GetAllEnv(name string) (map[string]string, error) {
	req, err := protocol.Encode(protocol.TagGetAllEnv, protocol.GetAllEnv{Name: name})
	if err != nil {
		return nil, err
	}
	f, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := asError(f); err != nil {
		return nil, err
	}
	var resp protocol.EnvVars
	if err := protocol.Unmarshal(f.Payload, &resp); err != nil {
		return nil, err
	}
	return resp.Vars, nil
}

// WaitSession blocks until the named session exits or timeoutSecs elapses
// (0 means wait indefinitely).
func (c *Client) WaitSession(name string, timeoutSecs uint64) error {
	req, err := protocol.Encode(protocol.TagWaitSession, protocol.WaitSession{Name: name, TimeoutSecs: timeoutSecs})
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(c.conn, req); err != nil {
		return err
	}
	// WaitSession may legitimately take longer than the dial timeout; read
	// with no extra deadline beyond what the daemon itself enforces.
	f, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return err
	}
	return asError(f)
}
