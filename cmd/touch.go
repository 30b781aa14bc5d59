package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/mru"
)

var touchCmd = &cobra.Command{
	Use:   "touch [tab]",
	Short: "Record a tab as the most recently used one",
	Long: `Move a tab to the head of the MRU order of its window.

Without an argument the currently active tab is recorded. Hook this into the
multiplexer's focus events so switches made outside the overlay keep the order
fresh:
  tmux:  set-hook -g after-select-window 'run-shell -b "tab-switcher touch"'
  kitty: a watcher calling "tab-switcher touch" on focus change`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := getMultiplexer(cfg.Mux)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		scope, err := m.Scope(ctx)
		if err != nil {
			return fmt.Errorf("resolve scope: %w", err)
		}
		tabs, err := m.ListTabs(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to list tabs: %w", err)
		}

		st := openScopeState(cfg, scope, pslog.Ctx(ctx))
		if st == nil {
			return nil
		}
		want := ""
		if len(args) == 1 {
			want = args[0]
		}
		order, err := touchTab(ctx, st.Order(), tabs, want)
		if err != nil {
			return err
		}
		return st.SaveOrder(order)
	},
}

func init() {
	rootCmd.AddCommand(touchCmd)
}

// touchTab reconciles stored against the live tabs and moves the wanted tab,
// or the active one when want is empty, to the head.
func touchTab(ctx context.Context, stored []model.TabIdentity, tabs []model.Tab, want string) ([]model.TabIdentity, error) {
	var (
		target model.Tab
		found  bool
	)
	if want == "" {
		target, found = model.ActiveTab(tabs)
	} else {
		for _, t := range tabs {
			if t.ID.Tab == want {
				target, found = t, true
				break
			}
		}
	}
	if !found {
		if want == "" {
			return nil, fmt.Errorf("no tabs in this window")
		}
		return nil, fmt.Errorf("tab %q not found", want)
	}

	stack := mru.New(stored)
	removed := stack.Reconcile(model.Identities(tabs))
	stack.Touch(target.ID)
	pslog.Ctx(ctx).Debug("mru touch", "tab", target.ID.Tab, "dropped", len(removed), "tabs", stack.Len())
	return stack.Order(), nil
}
