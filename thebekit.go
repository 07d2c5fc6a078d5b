// Package thebekit activates static documentation pages for the Thebe
// interactive-code widget: it decorates code cells with the attributes the
// widget expects and relays the widget's status events to launch buttons.
package thebekit

import (
	"time"
)

// Selectors identifies code cells and their parts in a rendered page.
type Selectors struct {
	Cell   string // code-block containers
	Input  string // input text, searched within a cell
	Output string // output area, searched within a cell
}

// Options configures a Controller.
type Options struct {
	Selectors Selectors

	// KernelName is the kernel the page was authored against (e.g. "python3", "ir").
	// It is normalized with DetectLanguage before being written to cells.
	KernelName string

	ActivatedMarker string // present once the widget has taken over the page
	LaunchButton    string
	InitCell        string // cells executed as soon as the kernel is ready
	RunTrigger      string // run control inside an init cell, created by the widget

	LaunchMessage string
	RetryInterval time.Duration

	Debug bool
}

// Default values used when an Options field is left empty.
const (
	DefaultCellSelector    = "div.cell"
	DefaultInputSelector   = "pre"
	DefaultOutputSelector  = ".output, .cell_output"
	DefaultKernelName      = "python3"
	DefaultActivatedMarker = "div.thebe-cell"
	DefaultLaunchButton    = ".thebe-launch-button"
	DefaultInitCell        = ".thebe-init, .tag_thebe-init"
	DefaultRunTrigger      = ".thebelab-run-button"
	DefaultLaunchMessage   = "Launching from mybinder.org: "
	DefaultRetryInterval   = 500 * time.Millisecond
)

// DefaultOptions returns the options matching Jupyter Book style markup.
func DefaultOptions() Options {
	return Options{
		Selectors: Selectors{
			Cell:   DefaultCellSelector,
			Input:  DefaultInputSelector,
			Output: DefaultOutputSelector,
		},
		KernelName:      DefaultKernelName,
		ActivatedMarker: DefaultActivatedMarker,
		LaunchButton:    DefaultLaunchButton,
		InitCell:        DefaultInitCell,
		RunTrigger:      DefaultRunTrigger,
		LaunchMessage:   DefaultLaunchMessage,
		RetryInterval:   DefaultRetryInterval,
	}
}

// withDefaults fills empty fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Selectors.Cell == "" {
		o.Selectors.Cell = d.Selectors.Cell
	}
	if o.Selectors.Input == "" {
		o.Selectors.Input = d.Selectors.Input
	}
	if o.Selectors.Output == "" {
		o.Selectors.Output = d.Selectors.Output
	}
	if o.KernelName == "" {
		o.KernelName = d.KernelName
	}
	if o.ActivatedMarker == "" {
		o.ActivatedMarker = d.ActivatedMarker
	}
	if o.LaunchButton == "" {
		o.LaunchButton = d.LaunchButton
	}
	if o.InitCell == "" {
		o.InitCell = d.InitCell
	}
	if o.RunTrigger == "" {
		o.RunTrigger = d.RunTrigger
	}
	if o.LaunchMessage == "" {
		o.LaunchMessage = d.LaunchMessage
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = d.RetryInterval
	}
	return o
}
