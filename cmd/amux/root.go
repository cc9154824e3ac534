package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jlowzow/amux/internal/cliclient"
	"github.com/jlowzow/amux/internal/daemonize"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "amux",
		Short:         "Terminal session multiplexer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newStartServerCmd(),
		newKillServerCmd(),
		newPingCmd(),
		newNewCmd(),
		newAttachCmd(),
		newLsCmd(),
		newKillCmd(),
		newKillAllCmd(),
		newSendCmd(),
		newHasCmd(),
		newCaptureCmd(),
		newEnvCmd(),
	)

	return root
}

// connect dials the daemon, starting it first if it is not already
// running.
func connect() (*cliclient.Client, error) {
	dir, err := daemonize.RuntimeDir()
	if err != nil {
		return nil, err
	}
	pidPath := daemonize.PidPath(dir)
	sockPath := daemonize.SocketPath(dir)

	if !daemonize.IsRunning(pidPath) {
		if _, err := daemonize.Fork([]string{"start-server"}); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
		if err := waitForSocket(sockPath, 3*time.Second); err != nil {
			return nil, err
		}
	}

	return cliclient.Dial(sockPath)
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c, err := cliclient.Dial(path); err == nil {
			c.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become ready at %s", path)
}
