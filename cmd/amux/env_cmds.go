package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnvCmd() *cobra.Command {
	var name string

	root := &cobra.Command{
		Use:   "env",
		Short: "Get or set a session's metadata environment",
	}
	root.PersistentFlags().StringVarP(&name, "name", "t", "", "session name")

	root.AddCommand(
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set a metadata variable on a session",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if name == "" {
					return fmt.Errorf("-t/--name is required")
				}
				c, err := connect()
				if err != nil {
					return err
				}
				defer c.Close()
				return c.SetEnv(name, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Get a metadata variable from a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if name == "" {
					return fmt.Errorf("-t/--name is required")
				}
				c, err := connect()
				if err != nil {
					return err
				}
				defer c.Close()

				value, ok, err := c.GetEnv(name, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no such variable: %s", args[0])
				}
				fmt.Println(value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List every metadata variable on a session",
			RunE: func(cmd *cobra.Command, args []string) error {
				if name == "" {
					return fmt.Errorf("-t/--name is required")
				}
				c, err := connect()
				if err != nil {
					return err
				}
				defer c.Close()

				vars, err := c.GetAllEnv(name)
				if err != nil {
					return err
				}
				for k, v := range vars {
					fmt.Printf("%s=%s\n", k, v)
				}
				return nil
			},
		},
	)

	return root
}
