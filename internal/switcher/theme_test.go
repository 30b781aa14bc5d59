package switcher

import (
	"reflect"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestThemes_AllColorsSet(t *testing.T) {
	for name, th := range map[string]Theme{"dark": DarkTheme(), "light": LightTheme()} {
		v := reflect.ValueOf(th)
		for i := 0; i < v.NumField(); i++ {
			if c, _ := v.Field(i).Interface().(lipgloss.Color); c == "" {
				t.Errorf("%s theme: %s is empty", name, v.Type().Field(i).Name)
			}
		}
	}
	if ThemeByName("light") != LightTheme() || ThemeByName("bogus") != DarkTheme() {
		t.Error("ThemeByName mapping wrong")
	}
}
