// Package session owns one PTY-backed child process: spawning it, running
// its I/O loop, and exposing the channels and scrollback a connection
// handler needs to drive attach/send/capture, generalized from "one
// session process with one client" to "many sessions, many concurrent
// attachers".
package session

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jlowzow/amux/internal/broadcast"
	"github.com/jlowzow/amux/internal/scrollback"
)

const (
	defaultCols = 80
	defaultRows = 24

	inputChanCap  = 256
	resizeChanCap = 16

	readChunkSize = 4096

	killGracePeriod = 2 * time.Second
)

// Resize is a terminal window size change.
type Resize struct {
	Cols uint16
	Rows uint16
}

// Session is one running child process attached to a PTY.
type Session struct {
	Name        string
	CommandDisp string
	Argv        []string
	CreatedAt   time.Time

	Input  chan []byte
	Resize chan Resize
	Output *broadcast.Hub

	log *logrus.Entry

	cmd  *exec.Cmd
	ptmx *os.File

	scrollback *scrollback.Buffer

	activityMu sync.Mutex
	lastActivity time.Time

	killOnce sync.Once
	killCh   chan struct{}

	done chan struct{}

	closeOnce sync.Once

	metaMu sync.Mutex
	meta   map[string]string
}

// Spawn starts a new child process under a PTY and returns the running
// Session. cols/rows of 0 fall back to 80x24.
func Spawn(name string, argv []string, cols, rows uint16, env map[string]string, log *logrus.Logger) (*Session, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("session: argv must not be empty")
	}
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	master, slave, err := openPTY(cols, rows)
	if err != nil {
		return nil, fmt.Errorf("session: open pty: %w", err)
	}

	if err := prepareSlaveTermios(slave); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("session: configure termios: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(env)...)
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("session: start child: %w", err)
	}

	// The child owns the slave fd via its own dup; the parent's copy is no
	// longer needed.
	slave.Close()

	now := time.Now()
	if log == nil {
		log = logrus.New()
	}
	entry := log.WithField("session", name)

	s := &Session{
		Name:         name,
		CommandDisp:  strings.Join(argv, " "),
		Argv:         append([]string(nil), argv...),
		CreatedAt:    now,
		Input:        make(chan []byte, inputChanCap),
		Resize:       make(chan Resize, resizeChanCap),
		Output:       broadcast.NewHub(),
		log:          entry,
		cmd:          cmd,
		ptmx:         master,
		scrollback:   scrollback.New(),
		lastActivity: now,
		killCh:       make(chan struct{}),
		done:         make(chan struct{}),
		meta:         make(map[string]string),
	}

	readDone := make(chan struct{})
	go s.readLoop(readDone)
	go s.writeLoop(readDone)
	go s.reapWhenDone()

	return s, nil
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Pid returns the child's process ID.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// IsAlive reports whether the child process still exists, by sending
// signal 0. This is an observable property, not a cached flag.
func (s *Session) IsAlive() bool {
	proc, err := os.FindProcess(s.Pid())
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// LastActivity returns the timestamp of the most recent PTY output chunk.
func (s *Session) LastActivity() time.Time {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return s.lastActivity
}

func (s *Session) setLastActivity(t time.Time) {
	s.activityMu.Lock()
	s.lastActivity = t
	s.activityMu.Unlock()
}

// Kill fires the session's single-shot kill signal. Safe to call more than
// once; only the first call has an effect.
func (s *Session) Kill() {
	s.killOnce.Do(func() {
		close(s.killCh)
	})
}

// Done returns a channel closed once the session's I/O loop has fully
// exited: the child is gone and the PTY master is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// CaptureScrollback returns the last n lines of scrollback.
func (s *Session) CaptureScrollback(n int) []byte {
	return s.scrollback.LastLines(n)
}

// SubscribeWithSnapshot takes a scrollback snapshot and subscribes to live
// output atomically, so no chunk is ever both in the snapshot and
// delivered again live, and no chunk published concurrently is lost.
func (s *Session) SubscribeWithSnapshot() ([]byte, *broadcast.Subscription) {
	var sub *broadcast.Subscription
	snapshot := s.scrollback.SnapshotAndSubscribe(func() {
		sub = s.Output.Subscribe()
	})
	return snapshot, sub
}

// SetEnv, GetEnv and GetAllEnv manage the session's metadata map, which is
// distinct from the process environment passed at spawn time.

func (s *Session) SetEnv(key, value string) {
	s.metaMu.Lock()
	s.meta[key] = value
	s.metaMu.Unlock()
}

func (s *Session) GetEnv(key string) (string, bool) {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	v, ok := s.meta[key]
	return v, ok
}

func (s *Session) GetAllEnv() map[string]string {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	out := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}
	return out
}

func (s *Session) reapWhenDone() {
	_ = s.cmd.Wait()
}

func (s *Session) closePTY() {
	s.closeOnce.Do(func() {
		s.ptmx.Close()
	})
}
