package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlowzow/amux/internal/config"
	"github.com/jlowzow/amux/internal/daemonize"
	"github.com/jlowzow/amux/internal/logging"
	"github.com/jlowzow/amux/internal/server"
)

// newStartServerCmd runs the daemon in the calling process; it does not fork
// or detach itself. connect starts it in the background via daemonize.Fork.
func newStartServerCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:    "start-server",
		Short:  "Start the session daemon",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := daemonize.RuntimeDir()
			if err != nil {
				return err
			}
			pidPath := daemonize.PidPath(dir)

			if daemonize.IsRunning(pidPath) {
				return fmt.Errorf("daemon already running")
			}

			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			logPath := ""
			if !foreground {
				logPath = daemonize.LogPath(dir)
			}
			log, err := logging.New(logPath, cfg.LogLevel)
			if err != nil {
				return err
			}

			if err := daemonize.WritePidFile(pidPath); err != nil {
				return err
			}

			sup, err := server.New(server.Config{
				SocketPath:   daemonize.SocketPath(dir),
				PidPath:      pidPath,
				ReapInterval: cfg.ReapInterval,
			}, log)
			if err != nil {
				return err
			}

			log.Info("amux daemon starting")
			sup.Run(context.Background())
			log.Info("amux daemon stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "log to stderr instead of the runtime directory's daemon.log")
	return cmd
}

func newKillServerCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "kill-server",
		Short: "Stop the session daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			if force {
				if _, err := c.KillAllSessions(); err != nil {
					return err
				}
			}
			return c.KillServer()
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "kill all sessions first")
	return cmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Ping(); err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
}
