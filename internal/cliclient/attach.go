package cliclient

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/term"

	"github.com/jlowzow/amux/internal/protocol"
)

// prefixByte is the attach escape key, Ctrl+B.
const prefixByte = 0x02

// Attach puts the local terminal into raw mode and pipes stdin/stdout to
// the named session until the session ends or the user detaches with
// Ctrl+B d.
func Attach(socketPath, name string) error {
	c, err := Dial(socketPath)
	if err != nil {
		return err
	}
	defer c.Close()

	cols, rows := termSize()
	req, err := protocol.Encode(protocol.TagAttach, protocol.Attach{Name: name, Cols: cols, Rows: rows})
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(c.conn, req); err != nil {
		return err
	}
	ack, err := protocol.ReadFrame(c.conn)
	if err != nil {
		return err
	}
	if err := asError(ack); err != nil {
		return err
	}

	stdinFd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("cliclient: enter raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	var wg sync.WaitGroup
	done := make(chan struct{})
	var closeOnce sync.Once
	finish := func() { closeOnce.Do(func() { close(done); c.conn.Close() }) }

	wg.Add(1)
	go func() {
		defer wg.Done()
		readOutputLoop(c, finish)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-winch:
				cols, rows := termSize()
				f, err := protocol.Encode(protocol.TagAttachResize, protocol.AttachResize{Cols: cols, Rows: rows})
				if err == nil {
					_ = protocol.WriteFrame(c.conn, f)
				}
			case <-done:
				return
			}
		}
	}()

	readStdinLoop(c, finish, done)

	<-done
	wg.Wait()
	return nil
}

// readOutputLoop copies Output frames from the daemon to stdout until the
// session ends or the connection breaks.
func readOutputLoop(c *Client, finish func()) {
	defer finish()
	for {
		f, err := protocol.TryReadFrame(c.conn)
		if err != nil || f == nil {
			return
		}
		switch f.Tag {
		case protocol.TagOutput:
			os.Stdout.Write(f.Payload)
		case protocol.TagSessionEnded:
			fmt.Fprintln(os.Stderr, "\r\n[session ended]")
			return
		}
	}
}

// readStdinLoop reads raw keystrokes from stdin, watching for the prefix
// key. Ctrl+B d sends Detach and returns; Ctrl+B Ctrl+B sends a literal
// Ctrl+B byte; Ctrl+B followed by anything else is swallowed; every other
// byte is forwarded as AttachInput.
func readStdinLoop(c *Client, finish func(), done <-chan struct{}) {
	defer finish()

	buf := make([]byte, 4096)
	pending := false

	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			data := buf[:n]
			i := 0
			for i < len(data) {
				b := data[i]
				if pending {
					pending = false
					switch b {
					case 'd', 'D':
						_ = protocol.WriteFrame(c.conn, protocol.Plain(protocol.TagDetach))
						return
					case prefixByte:
						if sendErr := sendInput(c, []byte{prefixByte}); sendErr != nil {
							return
						}
					}
					i++
					continue
				}
				if b == prefixByte {
					pending = true
					i++
					continue
				}

				j := i
				for j < len(data) && data[j] != prefixByte {
					j++
				}
				if sendErr := sendInput(c, data[i:j]); sendErr != nil {
					return
				}
				i = j
			}
		}
		if err != nil {
			if err != io.EOF {
				return
			}
			return
		}
		select {
		case <-done:
			return
		default:
		}
	}
}

func sendInput(c *Client, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return protocol.WriteFrame(c.conn, protocol.Bytes(protocol.TagAttachInput, cp))
}

func termSize() (cols, rows uint16) {
	w, h, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 80, 24
	}
	return uint16(w), uint16(h)
}
