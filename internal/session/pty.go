package session

import (
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// openPTY opens a PTY master/slave pair and sets its initial window size.
func openPTY(cols, rows uint16) (master, slave *os.File, err error) {
	master, slave, err = pty.Open()
	if err != nil {
		return nil, nil, err
	}
	if err := pty.Setsize(master, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		master.Close()
		slave.Close()
		return nil, nil, err
	}
	return master, slave, nil
}

// setWinsize applies a live resize to the PTY master.
func setWinsize(f *os.File, cols, rows uint16) error {
	return pty.Setsize(f, &pty.Winsize{Cols: cols, Rows: rows})
}

// prepareSlaveTermios puts the slave side into raw mode but re-enables the
// echo family, so the child sees a terminal that echoes input and handles
// backspace/kill-line the way an interactive shell expects, while canonical
// line buffering and signal generation stay off (the PTY is driven byte by
// byte over the control-plane connection, not by a foreground terminal
// that can send its own signals).
func prepareSlaveTermios(slave *os.File) error {
	fd := int(slave.Fd())

	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return err
	}

	cfmakeraw(t)
	t.Lflag |= unix.ECHO | unix.ECHOE | unix.ECHOK | unix.ECHOCTL

	return unix.IoctlSetTermios(fd, ioctlSetTermios, t)
}

// cfmakeraw applies the standard termios(3) raw-mode transformation.
func cfmakeraw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}
