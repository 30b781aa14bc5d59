package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/timvw/tab-switcher/internal/config"
	"github.com/timvw/tab-switcher/internal/keystate"
	"github.com/timvw/tab-switcher/internal/model"
	"github.com/timvw/tab-switcher/internal/mru"
	"github.com/timvw/tab-switcher/internal/mux"
	telem "github.com/timvw/tab-switcher/internal/otel"
	"github.com/timvw/tab-switcher/internal/preview"
	"github.com/timvw/tab-switcher/internal/state"
	"github.com/timvw/tab-switcher/internal/switcher"
)

var flagTheme string

var openCmd = &cobra.Command{
	Use:   "open [next|prev]",
	Short: "Open the MRU overlay, or cycle the one already open",
	Long: `Open the tab overlay for the current terminal window.

"next" (the default) highlights the previously used tab, "prev" the least
recently used one. When an overlay is already open for this window the
command is forwarded to it and cycles its highlight instead, so binding the
same chord to "open next" both opens and cycles.

The highlighted tab is activated when the modifier is released, on Enter or
q. Esc cancels and leaves the original tab focused.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"next", "prev"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCommand(args)
		if err != nil {
			return err
		}
		return runOpen(cmd.Context(), c)
	},
}

func init() {
	openCmd.Flags().StringVar(&flagTheme, "theme", "", "color theme: dark, light (default from config)")
	rootCmd.AddCommand(openCmd)
}

// openCommand parses the optional direction argument.
func openCommand(args []string) (keystate.Command, error) {
	if len(args) == 0 {
		return keystate.CmdNext, nil
	}
	c, err := keystate.ParseCommand(args[0])
	if err != nil {
		return "", err
	}
	if c != keystate.CmdNext && c != keystate.CmdPrev {
		return "", fmt.Errorf("open takes next or prev, got %q", args[0])
	}
	return c, nil
}

func directionOf(c keystate.Command) switcher.Direction {
	if c == keystate.CmdPrev {
		return switcher.Backward
	}
	return switcher.Forward
}

func runOpen(ctx context.Context, c keystate.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel() // stops the command listener and in-flight captures

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagTheme != "" {
		cfg.Theme = flagTheme
	}
	log := pslog.Ctx(ctx)
	if cfg.ConfigFile != "" {
		log.Debug("config loaded", "path", cfg.ConfigFile)
	}

	m, err := getMultiplexer(cfg.Mux)
	if err != nil {
		return err
	}
	scope, err := m.Scope(ctx)
	if err != nil {
		return fmt.Errorf("resolve scope: %w", err)
	}
	log = log.With("mux", m.Name(), "scope", scope)

	socketPath := keystate.DefaultSocketPath(scope)
	forwarded, err := forwardToOverlay(socketPath, scope, c)
	if err != nil {
		log.Debug("forward failed, opening a new overlay", "err", err)
	}
	if forwarded {
		log.Debug("forwarded to running overlay", "cmd", string(c))
		return nil
	}

	var commands <-chan keystate.Message
	listener := keystate.NewListener(socketPath, scope, log)
	if err := listener.Start(ctx); err != nil {
		log.Warn("command socket unavailable, cycling by keyboard only", "err", err)
	} else {
		commands = listener.Commands()
	}

	tabs, err := m.ListTabs(ctx, scope)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}
	origin, ok := model.ActiveTab(tabs)
	if !ok {
		fmt.Fprintln(os.Stderr, "tab-switcher: no tabs in this window")
		return nil
	}

	telem.Version = Version
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
		Log:      log,
	})
	if err != nil {
		log.Warn("otel init failed", "err", err)
	}
	defer tel.Shutdown(context.Background())
	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	tui := newOverlay(cfg, m, scope, tabs, origin.ID, directionOf(c), metrics, log)
	tui.Commands = commands

	outcome, err := tui.Run(ctx)
	if err != nil {
		return err
	}
	log.Debug("overlay finished", "outcome", outcome.Kind.String(), "target", outcome.Target.Tab)
	return nil
}

// forwardToOverlay hands c to an overlay already open for scope. It reports
// false when none is listening.
func forwardToOverlay(socketPath, scope string, c keystate.Command) (bool, error) {
	err := keystate.Send(socketPath, scope, c)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, keystate.ErrNoListener):
		return false, nil
	default:
		return false, err
	}
}

// newOverlay assembles the state machine, cache, scheduler and probe for one
// overlay session from the configuration.
func newOverlay(cfg *config.Config, m mux.Multiplexer, scope string, tabs []model.Tab, origin model.TabIdentity, dir switcher.Direction, metrics *telem.Metrics, log pslog.Logger) *switcher.TUI {
	st := openScopeState(cfg, scope, log)

	var (
		stored []model.TabIdentity
		cache  *preview.Cache
		saver  switcher.OrderSaver
	)
	if st != nil {
		stored = st.Order()
		cache = preview.NewCache(st, log)
		saver = st
	} else {
		cache = preview.NewCache(nil, log)
	}
	cache.Load()

	return &switcher.TUI{
		Mux:       m,
		Scope:     scope,
		Tabs:      tabs,
		Origin:    origin,
		Direction: dir,
		Machine:   switcher.NewMachine(machineConfig(cfg), mru.New(stored)),
		Cache:     cache,
		Scheduler: preview.NewScheduler(schedulerConfig(cfg), cache, m, metrics, log),
		Probe:     newProbe(cfg),
		Saver:     saver,
		Theme:     switcher.ThemeByName(cfg.Theme),
		Metrics:   metrics,
		Log:       log,
		Notices:   os.Stderr,
	}
}

// openScopeState opens the cache file for scope. It returns nil when no cache
// directory can be used; the overlay then runs memory-only.
func openScopeState(cfg *config.Config, scope string, log pslog.Logger) *state.Scope {
	path := cfg.CacheDir
	if path == "" {
		path = state.DefaultDir()
	}
	dir, err := state.NewDir(path, log)
	if err != nil {
		log.Warn("state directory unusable, running without cache", "err", err)
		return nil
	}
	return state.OpenScope(dir, scope, log)
}

func machineConfig(cfg *config.Config) switcher.MachineConfig {
	return switcher.MachineConfig{
		PollFast:      cfg.PollFastDuration,
		PollIdle:      cfg.PollIdleDuration,
		IdleAfter:     cfg.IdleAfterDuration,
		ReleaseGrace:  cfg.ReleaseGraceDuration,
		ReleaseStreak: cfg.ReleaseStreak,
	}
}

func schedulerConfig(cfg *config.Config) preview.SchedulerConfig {
	return preview.SchedulerConfig{
		Cols:       cfg.PreviewCols,
		Rows:       cfg.PreviewRows,
		MaxVisible: cfg.MaxVisible,
		Neighbors:  cfg.Neighbors,
		StaleAfter: cfg.StaleAfterDuration,
		Spacing:    cfg.FetchSpacingDuration,
	}
}

func newProbe(cfg *config.Config) keystate.Probe {
	if cfg.ModifierProbe == config.ProbeSocket {
		return keystate.NewSocket()
	}
	return keystate.NewLinger(cfg.LingerDuration, nil)
}
