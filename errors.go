package thebekit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
)

// ErrNoWidget is returned by a Loader that resolved without a widget.
var ErrNoWidget = errors.New("widget not available")

// SelectorError reports a CSS selector in the configuration that cannot be compiled.
type SelectorError struct {
	Field    string // Options field holding the selector
	Selector string
	Err      error // compile error from the selector engine
	Hint     string
}

// Error implements the error interface.
func (e *SelectorError) Error() string {
	return e.Format()
}

// Unwrap returns the underlying compile error.
func (e *SelectorError) Unwrap() error {
	return e.Err
}

// Format returns the error with the offending selector and an optional hint.
func (e *SelectorError) Format() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("invalid %s selector %q", e.Field, e.Selector))
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	if e.Hint != "" {
		b.WriteString(fmt.Sprintf(" (tip: %s)", e.Hint))
	}

	return b.String()
}

// NewSelectorError creates a new SelectorError.
func NewSelectorError(field, selector string, err error) *SelectorError {
	return &SelectorError{
		Field:    field,
		Selector: selector,
		Err:      err,
	}
}

// WithHint adds a helpful hint to the error.
func (e *SelectorError) WithHint(hint string) *SelectorError {
	e.Hint = hint
	return e
}

// Validate compiles every selector in o and reports the first one that fails.
// Empty fields are checked against their defaults.
func (o Options) Validate() error {
	o = o.withDefaults()

	fields := []struct {
		name string
		sel  string
	}{
		{"cell", o.Selectors.Cell},
		{"input", o.Selectors.Input},
		{"output", o.Selectors.Output},
		{"activated marker", o.ActivatedMarker},
		{"launch button", o.LaunchButton},
		{"init cell", o.InitCell},
		{"run trigger", o.RunTrigger},
	}

	for _, f := range fields {
		if _, err := cascadia.Compile(f.sel); err != nil {
			serr := NewSelectorError(f.name, f.sel, err)
			if strings.ContainsAny(f.sel, "{}") {
				serr = serr.WithHint("selectors must not contain template braces; check the config for unexpanded variables")
			} else {
				serr = serr.WithHint("use a standard CSS selector, e.g. \"div.cell\"")
			}
			return serr
		}
	}

	return nil
}
