package switcher

import (
	"context"
	"testing"
	"time"

	"github.com/timvw/tab-switcher/internal/config"
	"github.com/timvw/tab-switcher/internal/keystate"
	"github.com/timvw/tab-switcher/internal/mru"
)

// With the shipped defaults and a linger modifier, holding still after a
// cycle must drop to the slow poll before the linger runs out and commits.
func TestMachine_DefaultConfigIdlesBeforeCommit(t *testing.T) {
	cfg := config.Defaults()
	if err := cfg.ParseDurations(); err != nil {
		t.Fatal(err)
	}
	cfg.Normalize()

	now := t0
	linger := keystate.NewLinger(cfg.LingerDuration, func() time.Time { return now })
	m := NewMachine(MachineConfig{
		PollFast:      cfg.PollFastDuration,
		PollIdle:      cfg.PollIdleDuration,
		IdleAfter:     cfg.IdleAfterDuration,
		ReleaseGrace:  cfg.ReleaseGraceDuration,
		ReleaseStreak: cfg.ReleaseStreak,
	}, mru.New(tabs("A", "B", "C")))

	m.Open(Forward, tab("A"), now)
	now = now.Add(100 * time.Millisecond)
	linger.Observe(keystate.CmdNext, now)
	m.Cycle(1, now)

	sawIdle := false
	deadline := now.Add(5 * time.Second)
	for now.Before(deadline) {
		now = now.Add(m.PollInterval(now))
		held, err := linger.ModifierHeld(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		o := m.Poll(held, now)
		if o.Kind == OutcomeCommit {
			if !sawIdle {
				t.Fatalf("committed at +%v without reaching %v", now.Sub(t0), OpenIdle)
			}
			if o.Target.Tab != "C" {
				t.Errorf("committed %s, want C", o.Target.Tab)
			}
			return
		}
		if m.State() == OpenIdle {
			sawIdle = true
			if got := m.PollInterval(now); got != cfg.PollIdleDuration {
				t.Errorf("idle poll interval %v, want %v", got, cfg.PollIdleDuration)
			}
		}
	}
	t.Fatal("linger never released")
}
