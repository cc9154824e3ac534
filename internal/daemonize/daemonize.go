// Package daemonize locates the daemon's runtime directory, manages its
// PID file, and detaches the daemon process into the background.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// RuntimeDir returns the per-user directory holding the control socket,
// PID file, and log file: $XDG_RUNTIME_DIR/amux if set, else
// /tmp/amux-<uid>. The directory is created if absent.
func RuntimeDir() (string, error) {
	var dir string
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		dir = filepath.Join(xdg, "amux")
	} else {
		dir = fmt.Sprintf("/tmp/amux-%d", os.Getuid())
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("daemonize: create runtime dir: %w", err)
	}
	return dir, nil
}

// SocketPath returns the control socket path within dir.
func SocketPath(dir string) string { return filepath.Join(dir, "server.sock") }

// PidPath returns the PID file path within dir.
func PidPath(dir string) string { return filepath.Join(dir, "server.pid") }

// LogPath returns the log file path within dir.
func LogPath(dir string) string { return filepath.Join(dir, "daemon.log") }

// WritePidFile records the current process's PID at path.
func WritePidFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPidFile reads the PID recorded at path.
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// IsRunning reports whether the daemon recorded in the PID file at path is
// still alive, by sending signal 0 to it.
func IsRunning(pidPath string) bool {
	pid, err := ReadPidFile(pidPath)
	if err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Fork re-execs the current binary with args, detached from the calling
// terminal, its standard streams redirected to /dev/null, and returns once
// the child has started. A raw fork() is unsafe from a multi-threaded Go
// process, so detachment instead happens via Setsid on a re-executed
// child process.
func Fork(args []string) (pid int, err error) {
	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("daemonize: resolve executable: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("daemonize: open /dev/null: %w", err)
	}
	defer devNull.Close()

	cmd := exec.Command(self, args...)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("daemonize: start detached process: %w", err)
	}

	return cmd.Process.Pid, nil
}
