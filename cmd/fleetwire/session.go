package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/session"
)

var (
	sessionUser        string
	sessionAskPassword bool
)

var sessionCmd = &cobra.Command{
	Use:   "session <device-id>",
	Short: "Open an interactive session to a device",
	Long: `Session opens an interactive CLI loop against one device over a
pooled connection. Commands are sent as typed; "exit" or EOF closes
the session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceID := args[0]
		if sessionUser == "" {
			sessionUser = userSettings.DefaultUser
		}
		if sessionUser == "" {
			sessionUser = defaultUser()
		}
		if sessionAskPassword {
			if err := promptPassword(deviceID); err != nil {
				return err
			}
		}

		p := pool.New(dialer, registry, cfg.PoolConfig())
		defer p.Close()
		mgr := session.NewManager(p, builder, sink, cfg.SessionConfig())
		defer mgr.Shutdown()

		s, err := mgr.Create(cmd.Context(), deviceID, sessionUser)
		if err != nil {
			return err
		}
		defer mgr.Close(s.ID)
		fmt.Printf("connected to %s (session %s), 'exit' to quit\n", deviceID, s.ID)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Printf("%s> ", deviceID)
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}
			command := strings.TrimSpace(scanner.Text())
			switch command {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			err := mgr.ExecuteStream(cmd.Context(), s.ID, command, func(c session.Chunk) {
				fmt.Print(c.Data)
			})
			if err != nil {
				return fmt.Errorf("session ended: %w", err)
			}
			fmt.Println()
		}
	},
}

// promptPassword overrides the device's inventory credentials with an
// interactively entered password. The password never touches logs or
// argv.
func promptPassword(deviceID string) error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return fmt.Errorf("--ask-password needs an interactive terminal")
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", deviceID)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	overlay := inventoryOverlay{Directory: directory, deviceID: deviceID, password: string(secret)}
	directory = overlay
	rebuildBuilder()
	return nil
}

func init() {
	sessionCmd.Flags().StringVarP(&sessionUser, "user", "u", "", "Session owner, for the per-user cap")
	sessionCmd.Flags().BoolVar(&sessionAskPassword, "ask-password", false, "Prompt for the device password instead of using inventory credentials")
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}
