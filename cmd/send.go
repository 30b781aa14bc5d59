package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timvw/tab-switcher/internal/keystate"
)

var sendCmd = &cobra.Command{
	Use:   "send <next|prev|hold|release|commit|cancel>",
	Short: "Send a command to the overlay open in this window",
	Long: `Send one command to the overlay currently open for this terminal window.

hold and release drive the socket modifier probe (modifier_probe: socket):
bind them to the modifier's key-down and key-up events where the terminal or
window manager can report those. It is an error when no overlay is open.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"next", "prev", "hold", "release", "commit", "cancel"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := keystate.ParseCommand(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg.Mux)
		if err != nil {
			return err
		}
		scope, err := m.Scope(cmd.Context())
		if err != nil {
			return fmt.Errorf("resolve scope: %w", err)
		}

		if err := keystate.Send(keystate.DefaultSocketPath(scope), scope, c); err != nil {
			if errors.Is(err, keystate.ErrNoListener) {
				return fmt.Errorf("no overlay open for %s", scope)
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
