package session

import (
	"io"
	"syscall"
	"time"
)

// readLoop pulls output from the PTY master and fans it out. It owns no
// writes to ptmx and never touches s.cmd; its only job is read-publish-
// repeat until the master returns EOF or an error, at which point it
// closes readDone so writeLoop can perform shutdown.
//
// Splitting read and write into separate goroutines is the idiomatic Go
// translation of a single select-loop over "master readable / input
// pending / resize pending / kill requested": os.File has no channel-based
// readiness, so the blocking Read runs on its own goroutine while writeLoop
// multiplexes the other three sources with select.
func (s *Session) readLoop(readDone chan<- struct{}) {
	defer close(readDone)

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.setLastActivity(time.Now())
			s.scrollback.PushAndPublish(chunk, s.Output.Publish)
		}
		if err != nil {
			if s.log != nil {
				if err == io.EOF {
					s.log.Debug("pty closed")
				} else {
					s.log.WithError(err).Debug("pty read ended")
				}
			}
			return
		}
	}
}

// writeLoop is the single writer to the PTY master and the sole owner of
// the session's lifecycle: it applies input, applies resizes, and runs the
// kill sequence (SIGTERM, grace period, SIGKILL) on request. It exits when
// either the child's output ends on its own (readDone) or a kill completes.
func (s *Session) writeLoop(readDone <-chan struct{}) {
	defer close(s.done)
	defer s.closePTY()
	defer s.Output.Close()

	for {
		select {
		case data, ok := <-s.Input:
			if !ok {
				continue
			}
			writeAll(s.ptmx, data)

		case rz := <-s.Resize:
			_ = setWinsize(s.ptmx, rz.Cols, rz.Rows)

		case <-s.killCh:
			s.runKillSequence()
			return

		case <-readDone:
			return
		}
	}
}

// writeAll retries partial writes until all of data is written or the PTY
// rejects the write outright.
func writeAll(w io.Writer, data []byte) {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return
		}
		data = data[n:]
	}
}

// runKillSequence sends SIGTERM, waits up to killGracePeriod, then sends
// SIGKILL if the process is still alive.
func (s *Session) runKillSequence() {
	proc := s.cmd.Process
	if proc == nil {
		return
	}

	_ = proc.Signal(syscall.SIGTERM)

	deadline := time.NewTimer(killGracePeriod)
	defer deadline.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.C:
			_ = proc.Signal(syscall.SIGKILL)
			return
		case <-ticker.C:
			if !s.IsAlive() {
				return
			}
		}
	}
}
