// Package connhandler implements the per-connection request dispatch loop
// for the daemon's control socket: one goroutine per client connection,
// decoding frames and driving the registry and individual sessions.
package connhandler

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jlowzow/amux/internal/protocol"
	"github.com/jlowzow/amux/internal/registry"
	"github.com/jlowzow/amux/internal/session"
)

// Handler dispatches frames arriving on control-socket connections.
type Handler struct {
	Registry *registry.Registry
	Log      *logrus.Logger

	// Shutdown is invoked when a client issues KillServer and no sessions
	// are registered. It should stop the accept loop and unwind the
	// daemon's main goroutine.
	Shutdown func()
}

// conn wraps a net.Conn with a write mutex, since an attached connection
// has two goroutines (the output forwarder and the request reader) that
// may both need to write frames.
type conn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *conn) writeFrame(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.Conn, f)
}

// Handle services one client connection until it disconnects.
func (h *Handler) Handle(nc net.Conn) {
	defer nc.Close()
	c := &conn{Conn: nc}

	for {
		frame, err := protocol.TryReadFrame(c.Conn)
		if err != nil {
			if h.Log != nil && !errors.Is(err, io.EOF) {
				h.Log.WithError(err).Debug("connection read error")
			}
			return
		}
		if frame == nil {
			return
		}

		if err := h.dispatch(c, *frame); err != nil {
			if h.Log != nil {
				h.Log.WithError(err).Debug("dispatch error")
			}
			return
		}
	}
}

func (h *Handler) dispatch(c *conn, frame protocol.Frame) error {
	switch frame.Tag {
	case protocol.TagPing:
		return c.writeFrame(protocol.Plain(protocol.TagPong))

	case protocol.TagKillServer:
		return h.handleKillServer(c)

	case protocol.TagCreateSession:
		return h.handleCreateSession(c, frame)

	case protocol.TagListSessions:
		return h.handleListSessions(c)

	case protocol.TagGetSessionInfo:
		return h.handleGetSessionInfo(c, frame)

	case protocol.TagKillSession:
		return h.handleKillSession(c, frame)

	case protocol.TagKillAllSessions:
		count := h.Registry.KillAll()
		return c.writeFrame(mustEncode(protocol.TagKilledSessions, protocol.KilledSessions{Count: count}))

	case protocol.TagAttach:
		return h.handleAttach(c, frame)

	case protocol.TagSendInput:
		return h.handleSendInput(c, frame)

	case protocol.TagHasSession:
		return h.handleHasSession(c, frame)

	case protocol.TagCaptureScrollback:
		return h.handleCaptureScrollback(c, frame)

	case protocol.TagSetEnv:
		return h.handleSetEnv(c, frame)

	case protocol.TagGetEnv:
		return h.handleGetEnv(c, frame)

	case protocol.TagGetAllEnv:
		return h.handleGetAllEnv(c, frame)

	case protocol.TagWaitSession:
		return h.handleWaitSession(c, frame)

	default:
		return c.writeFrame(protocol.ErrorFrame("unexpected message"))
	}
}

func (h *Handler) handleKillServer(c *conn) error {
	if h.Registry.Len() > 0 {
		return c.writeFrame(protocol.ErrorFrame("refusing to stop: sessions still running; kill them first"))
	}
	if err := c.writeFrame(protocol.Plain(protocol.TagOk)); err != nil {
		return err
	}
	if h.Shutdown != nil {
		h.Shutdown()
	}
	return nil
}

func (h *Handler) handleCreateSession(c *conn, frame protocol.Frame) error {
	var req protocol.CreateSession
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad CreateSession payload: " + err.Error()))
	}
	if len(req.Command) == 0 {
		return c.writeFrame(protocol.ErrorFrame("command must not be empty"))
	}

	var requested string
	if req.Name != nil {
		requested = *req.Name
	}
	name := h.Registry.AllocateName(requested)

	if _, err := h.Registry.Create(name, req.Command, 0, 0, req.Env); err != nil {
		return c.writeFrame(protocol.ErrorFrame(err.Error()))
	}

	return c.writeFrame(mustEncode(protocol.TagSessionCreated, protocol.SessionCreated{Name: name}))
}

func (h *Handler) handleListSessions(c *conn) error {
	sessions := h.Registry.List()
	infos := make([]protocol.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, sessionInfo(s))
	}
	return c.writeFrame(mustEncode(protocol.TagSessionList, protocol.SessionList{Sessions: infos}))
}

func (h *Handler) handleGetSessionInfo(c *conn, frame protocol.Frame) error {
	var req protocol.GetSessionInfo
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad GetSessionInfo payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	return c.writeFrame(mustEncode(protocol.TagSessionDetail, protocol.SessionDetail{Info: sessionInfo(s)}))
}

func (h *Handler) handleKillSession(c *conn, frame protocol.Frame) error {
	var req protocol.KillSession
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad KillSession payload: " + err.Error()))
	}
	if !h.Registry.Kill(req.Name) {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	return c.writeFrame(protocol.Plain(protocol.TagOk))
}

func (h *Handler) handleSendInput(c *conn, frame protocol.Frame) error {
	var req protocol.SendInput
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad SendInput payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}

	data := req.Data
	if req.Newline {
		data = append(append([]byte(nil), data...), '\n')
	}
	s.Input <- data

	return c.writeFrame(protocol.Plain(protocol.TagInputSent))
}

func (h *Handler) handleHasSession(c *conn, frame protocol.Frame) error {
	var req protocol.HasSession
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad HasSession payload: " + err.Error()))
	}
	return c.writeFrame(mustEncode(protocol.TagSessionExists, protocol.SessionExists{Exists: h.Registry.Has(req.Name)}))
}

func (h *Handler) handleCaptureScrollback(c *conn, frame protocol.Frame) error {
	var req protocol.CaptureScrollback
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad CaptureScrollback payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	data := s.CaptureScrollback(req.Lines)
	return c.writeFrame(protocol.Bytes(protocol.TagCaptureOutput, data))
}

func (h *Handler) handleSetEnv(c *conn, frame protocol.Frame) error {
	var req protocol.SetEnv
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad SetEnv payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	s.SetEnv(req.Key, req.Value)
	return c.writeFrame(protocol.Plain(protocol.TagOk))
}

func (h *Handler) handleGetEnv(c *conn, frame protocol.Frame) error {
	var req protocol.GetEnv
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad GetEnv payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	var value *string
	if v, ok := s.GetEnv(req.Key); ok {
		value = &v
	}
	return c.writeFrame(mustEncode(protocol.TagEnvValue, protocol.EnvValue{Value: value}))
}

func (h *Handler) handleGetAllEnv(c *conn, frame protocol.Frame) error {
	var req protocol.GetAllEnv
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad GetAllEnv payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}
	return c.writeFrame(mustEncode(protocol.TagEnvVars, protocol.EnvVars{Vars: s.GetAllEnv()}))
}

func (h *Handler) handleWaitSession(c *conn, frame protocol.Frame) error {
	var req protocol.WaitSession
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad WaitSession payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}

	if req.TimeoutSecs == 0 {
		<-s.Done()
		return c.writeFrame(protocol.Plain(protocol.TagSessionExited))
	}

	timer := time.NewTimer(time.Duration(req.TimeoutSecs) * time.Second)
	defer timer.Stop()
	select {
	case <-s.Done():
		return c.writeFrame(protocol.Plain(protocol.TagSessionExited))
	case <-timer.C:
		return c.writeFrame(protocol.ErrorFrame("timeout"))
	}
}

// handleAttach enters attach mode: it sends a scrollback snapshot followed
// by every future output chunk, while forwarding AttachInput/AttachResize
// frames read from the same connection into the session, until the client
// sends Detach or the session ends.
func (h *Handler) handleAttach(c *conn, frame protocol.Frame) error {
	var req protocol.Attach
	if err := protocol.Unmarshal(frame.Payload, &req); err != nil {
		return c.writeFrame(protocol.ErrorFrame("bad Attach payload: " + err.Error()))
	}
	s, ok := h.Registry.Get(req.Name)
	if !ok {
		return c.writeFrame(protocol.ErrorFrame(fmt.Sprintf("session '%s' not found", req.Name)))
	}

	if req.Cols != 0 && req.Rows != 0 {
		select {
		case s.Resize <- session.Resize{Cols: req.Cols, Rows: req.Rows}:
		default:
		}
	}

	snapshot, sub := s.SubscribeWithSnapshot()
	defer s.Output.Unsubscribe(sub)

	if err := c.writeFrame(protocol.Plain(protocol.TagOk)); err != nil {
		return err
	}
	if len(snapshot) > 0 {
		if err := c.writeFrame(protocol.Bytes(protocol.TagOutput, snapshot)); err != nil {
			return err
		}
	}

	forwarderDone := make(chan struct{})
	stopForward := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		for {
			select {
			case data, ok := <-sub.Ch:
				if !ok {
					// The hub only closes when the session's I/O loop
					// exits: tell the client and drop the connection.
					_ = c.writeFrame(protocol.Plain(protocol.TagSessionEnded))
					c.Close()
					return
				}
				if err := c.writeFrame(protocol.Bytes(protocol.TagOutput, data)); err != nil {
					return
				}
			case <-stopForward:
				return
			}
		}
	}()

	for {
		f, err := protocol.TryReadFrame(c.Conn)
		if err != nil || f == nil {
			close(stopForward)
			<-forwarderDone
			if err != nil {
				return err
			}
			return io.EOF
		}

		switch f.Tag {
		case protocol.TagAttachInput:
			s.Input <- f.Payload

		case protocol.TagAttachResize:
			var rz protocol.AttachResize
			if err := protocol.Unmarshal(f.Payload, &rz); err == nil {
				select {
				case s.Resize <- session.Resize{Cols: rz.Cols, Rows: rz.Rows}:
				default:
				}
			}

		case protocol.TagDetach:
			close(stopForward)
			<-forwarderDone
			return nil

		default:
			// Ignore unexpected messages during attach.
		}
	}
}

func sessionInfo(s *session.Session) protocol.SessionInfo {
	now := time.Now()
	last := s.LastActivity()
	return protocol.SessionInfo{
		Name:         s.Name,
		Command:      s.CommandDisp,
		Pid:          s.Pid(),
		Alive:        s.IsAlive(),
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		UptimeSecs:   uint64(now.Sub(s.CreatedAt).Seconds()),
		LastActivity: last.UTC().Format(time.RFC3339),
		IdleSecs:     uint64(now.Sub(last).Seconds()),
	}
}

func mustEncode(tag protocol.Tag, v interface{}) protocol.Frame {
	f, err := protocol.Encode(tag, v)
	if err != nil {
		// Every payload type here is a plain struct of strings/ints/maps;
		// CBOR marshaling cannot fail on them.
		panic(err)
	}
	return f
}
