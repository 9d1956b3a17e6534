package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/haldane/mediagate/internal/auth"
	"github.com/spf13/cobra"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd [password]",
	Short: "Hash a gate password for the configuration file",
	Long: `Hash a gate password with bcrypt. Put the output in gate.password_hash
in the configuration file. The password is read from the argument, or
from stdin when no argument is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPasswd,
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}

func runPasswd(cmd *cobra.Command, args []string) error {
	var password string

	if len(args) == 1 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, hash)
	return nil
}
