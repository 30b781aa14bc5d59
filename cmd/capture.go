package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/preview"
)

var flagBound bool

var captureCmd = &cobra.Command{
	Use:   "capture <window>",
	Short: "Capture the visible content of a window",
	Long: `Capture the visible content of a window and print it to stdout.

The window id depends on the multiplexer:
  tmux:  pane or window id (e.g., "%3" or "@1")
  kitty: window id (e.g., "7")

With --bound the output is cut to the configured preview size, exactly as the
overlay shows it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg.Mux)
		if err != nil {
			return err
		}

		id := model.TabIdentity{Tab: target, Window: target}
		lines, err := m.CaptureWindow(cmd.Context(), id, cfg.PreviewCols, cfg.PreviewRows)
		if err != nil {
			return fmt.Errorf("failed to capture window %q: %w", target, err)
		}
		if flagBound {
			lines = preview.Bound(lines, cfg.PreviewCols, cfg.PreviewRows)
		}

		if len(lines) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
		}
		return nil
	},
}

func init() {
	captureCmd.Flags().BoolVar(&flagBound, "bound", false, "cut the capture to the configured preview size")
	rootCmd.AddCommand(captureCmd)
}
