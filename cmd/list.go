package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/mru"
)

var flagNative bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tabs of this window in MRU order",
	Long: `List the tabs of the current terminal window, most recently used first.

Each line holds the tab id, the previewed window id, and the title. The active
tab is marked with "*". Use --native for the multiplexer's own order.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		tabs, err := m.ListTabs(cmd.Context(), scope)
		if err != nil {
			return fmt.Errorf("failed to list tabs: %w", err)
		}

		if !flagNative {
			var stored []model.TabIdentity
			if st := openScopeState(cfg, scope, pslog.Ctx(cmd.Context())); st != nil {
				stored = st.Order()
			}
			tabs = inMRUOrder(stored, tabs)
		}
		printTabs(cmd.OutOrStdout(), tabs)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&flagNative, "native", false, "list in the multiplexer's order instead of MRU order")
	rootCmd.AddCommand(listCmd)
}

// inMRUOrder orders the live tabs by the stored MRU order. Tabs the stored
// order does not know follow in native order.
func inMRUOrder(stored []model.TabIdentity, tabs []model.Tab) []model.Tab {
	stack := mru.New(stored)
	stack.Reconcile(model.Identities(tabs))

	byTab := make(map[string]model.Tab, len(tabs))
	for _, t := range tabs {
		byTab[t.ID.Tab] = t
	}
	out := make([]model.Tab, 0, len(tabs))
	for _, id := range stack.Order() {
		if t, ok := byTab[id.Tab]; ok {
			out = append(out, t)
		}
	}
	return out
}

func printTabs(w io.Writer, tabs []model.Tab) {
	for _, t := range tabs {
		marker := " "
		if t.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\t%s\t%s\n", marker, t.ID.Tab, t.ID.Window, t.Title)
	}
}
