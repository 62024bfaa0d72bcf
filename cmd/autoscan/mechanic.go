package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <name>",
	Short: "Choose the mechanic name recorded on new jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.store.Login(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", goodColor.Sprint(m.Name), shortID(m.ID))
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Change the current mechanic's name, keeping the id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.store.Rename(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed to %s\n", goodColor.Sprint(m.Name))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current mechanic",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.Close()

		m, ok := a.store.Mechanic()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), faintColor.Sprint("not logged in"))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", m.Name, m.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, renameCmd, whoamiCmd)
}
