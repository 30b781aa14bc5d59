package keystate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSocketPath returns the command socket for scope.
func DefaultSocketPath(scope string) string {
	name := sanitizeScope(scope) + ".sock"
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "tab-switcher", name)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("tab-switcher-%d", os.Getuid()), name)
}

func sanitizeScope(scope string) string {
	if scope == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, scope)
}
