package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jlowzow/amux/internal/cliclient"
	"github.com/jlowzow/amux/internal/daemonize"
)

func newNewCmd() *cobra.Command {
	var name string
	var detach bool
	var envPairs []string

	cmd := &cobra.Command{
		Use:   "new [flags] -- command [args...]",
		Short: "Create a new session running command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}

			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			created, err := c.CreateSession(name, args, env)
			if err != nil {
				return err
			}
			fmt.Println(created)

			if detach {
				return nil
			}

			c.Close()
			dir, err := daemonize.RuntimeDir()
			if err != nil {
				return err
			}
			return cliclient.Attach(daemonize.SocketPath(dir), created)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name (generated if omitted)")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "create the session without attaching to it")
	cmd.Flags().StringArrayVarP(&envPairs, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	return cmd
}

func newAttachCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach to a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("-t/--name is required")
			}
			dir, err := daemonize.RuntimeDir()
			if err != nil {
				return err
			}
			if !daemonize.IsRunning(daemonize.PidPath(dir)) {
				return fmt.Errorf("daemon is not running")
			}
			return cliclient.Attach(daemonize.SocketPath(dir), name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name")
	return cmd
}

func newLsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			sessions, err := c.ListSessions()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}

			for _, s := range sessions {
				status := "dead"
				if s.Alive {
					status = "alive"
				}
				fmt.Printf("%-20s %-8s pid=%-8d uptime=%ds idle=%ds  %s\n",
					s.Name, status, s.Pid, s.UptimeSecs, s.IdleSecs, s.Command)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newKillCmd() *cobra.Command {
	var name string
	var all bool

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			if all {
				count, err := c.KillAllSessions()
				if err != nil {
					return err
				}
				fmt.Printf("killed %d session(s)\n", count)
				return nil
			}
			if name == "" {
				return fmt.Errorf("-t/--name or --all is required")
			}
			return c.KillSession(name)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name")
	cmd.Flags().BoolVar(&all, "all", false, "kill every session")
	return cmd
}

func newKillAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill-all",
		Short: "Kill every session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()
			count, err := c.KillAllSessions()
			if err != nil {
				return err
			}
			fmt.Printf("killed %d session(s)\n", count)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	var name string
	var newline bool

	cmd := &cobra.Command{
		Use:   "send -t name text...",
		Short: "Send input to a session without attaching",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("-t/--name is required")
			}
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()
			return c.SendInput(name, []byte(strings.Join(args, " ")), newline)
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name")
	cmd.Flags().BoolVarP(&newline, "newline", "l", false, "append a trailing newline")
	return cmd
}

func newHasCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "has",
		Short: "Check whether a session exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("-t/--name is required")
			}
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			exists, err := c.HasSession(name)
			if err != nil {
				return err
			}
			if !exists {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name")
	return cmd
}

func newCaptureCmd() *cobra.Command {
	var name string
	var lines int

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Print a session's scrollback",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("-t/--name is required")
			}
			c, err := connect()
			if err != nil {
				return err
			}
			defer c.Close()

			// LastLines(0) is empty; asking for more lines than the buffer
			// can hold returns all of it.
			if lines == 0 {
				lines = math.MaxInt32
			}
			data, err := c.CaptureScrollback(name, lines)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "t", "", "session name")
	cmd.Flags().IntVarP(&lines, "lines", "n", 0, "number of trailing lines (0 = entire buffer)")
	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -e value %q, expected KEY=VALUE", p)
		}
		out[k] = v
	}
	return out, nil
}
