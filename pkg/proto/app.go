// Package proto provides the emulated framework surface: the capability
// prototypes mixed into request and response views, and the application
// handle shared by every view pair.
package proto

import (
	"errors"
	"maps"

	"github.com/Suhaibinator/SBridge/pkg/object"
)

// ErrSharedContextMutation is returned by every write to the shared App.
// The App is reachable from every run, so a write would leak across runs.
var ErrSharedContextMutation = errors.New("the shared application context is read-only")

// App is the process-lifetime application handle reachable from every view
// as "app". It carries read-only settings. Create it once at startup.
type App struct {
	settings object.Record
}

// NewApp creates an App with a private copy of settings layered over the defaults.
func NewApp(settings object.Record) *App {
	s := DefaultSettings()
	maps.Copy(s, settings)
	return &App{settings: s}
}

// DefaultSettings returns the settings an App starts from.
func DefaultSettings() object.Record {
	return object.Record{
		"env":                 "production",
		"trust proxy":         false,
		"x-powered-by":        false,
		"jsonp callback name": "callback",
	}
}

// Setting returns the value of a setting, or nil.
func (a *App) Setting(name string) any {
	return a.settings[name]
}

// Enabled reports whether a setting is true.
func (a *App) Enabled(name string) bool {
	b, _ := a.settings[name].(bool)
	return b
}

// Has reports whether the app exposes name.
func (a *App) Has(name string) bool {
	switch name {
	case "settings", "get", "enabled", "disabled":
		return true
	}
	return false
}

// Get returns app properties. "settings" is returned as a copy so callers
// cannot mutate the shared map.
func (a *App) Get(name string) (any, error) {
	switch name {
	case "settings":
		return maps.Clone(a.settings), nil
	case "get":
		return object.Method(func(args ...any) (any, error) {
			return a.Setting(firstString(args)), nil
		}), nil
	case "enabled":
		return object.Method(func(args ...any) (any, error) {
			return a.Enabled(firstString(args)), nil
		}), nil
	case "disabled":
		return object.Method(func(args ...any) (any, error) {
			return !a.Enabled(firstString(args)), nil
		}), nil
	}
	return nil, nil
}

// Set always fails with ErrSharedContextMutation.
func (a *App) Set(name string, _ any) error {
	return &object.PropertyError{Op: "set", Property: name, Err: ErrSharedContextMutation}
}

func firstString(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s, _ := args[0].(string)
	return s
}
