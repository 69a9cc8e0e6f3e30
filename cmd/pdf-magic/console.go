// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/pdiddy/pdf-magic/pkg/types"
)

// palette holds the colours for each kind of console line.
type palette struct {
	ok, fail, warn, info *color.Color
}

var colors = palette{
	ok:   color.New(color.FgGreen),
	fail: color.New(color.FgRed),
	warn: color.New(color.FgYellow),
	info: color.New(color.FgCyan),
}

// applyTheme maps the theme setting onto console colours.
func applyTheme(theme string) {
	switch theme {
	case "plain":
		color.NoColor = true
	case "dark":
		colors = palette{
			ok:   color.New(color.FgHiGreen),
			fail: color.New(color.FgHiRed),
			warn: color.New(color.FgHiYellow),
			info: color.New(color.FgHiCyan),
		}
	}
}

// console renders runner events. With one task it shows a spinner until the
// task starts and a progress bar while it runs; with several it prints one
// prefixed line per event.
type console struct {
	w     io.Writer
	names map[string]string
	multi bool

	spin *spinner.Spinner
	bar  *progressbar.ProgressBar
}

func newConsole(w io.Writer, names map[string]string) *console {
	return &console{w: w, names: names, multi: len(names) > 1}
}

// waiting shows a spinner until the first event arrives.
func (c *console) waiting(msg string) {
	if c.multi {
		c.line(colors.info, "…", "", msg)
		return
	}
	c.spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	c.spin.Suffix = " " + msg
	c.spin.Writer = c.w
	c.spin.Start()
}

func (c *console) handle(ev types.Event) {
	c.stopSpinner()

	switch ev.Kind {
	case types.EventProgress:
		if c.multi {
			c.line(colors.info, "…", ev.TaskID, fmt.Sprintf("%d%%", ev.Percent))
			return
		}
		c.progress(ev.Percent)
	case types.EventLog:
		mark, col := "✓", colors.ok
		if ev.Entry.Level == types.LevelError {
			mark, col = "✗", colors.fail
		}
		msg := ev.Entry.Message
		if ev.Entry.Input != "" {
			msg = ev.Entry.Input + ": " + msg
		}
		c.line(col, mark, ev.TaskID, msg)
	case types.EventCompleted:
		c.endBar(true)
		c.line(colors.ok, "✓", ev.TaskID, "completed")
	case types.EventFailed:
		c.endBar(false)
		c.line(colors.fail, "✗", ev.TaskID, "failed: "+ev.Error)
	case types.EventCancelled:
		c.endBar(false)
		c.line(colors.warn, "⚠", ev.TaskID, "cancelled")
	}
}

// notice prints a line outside any task.
func (c *console) notice(msg string) {
	c.line(colors.warn, "⚠", "", msg)
}

func (c *console) progress(pct int) {
	if c.bar == nil {
		c.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(c.w),
			progressbar.OptionSetDescription("converting"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	_ = c.bar.Set(pct)
}

// endBar retires the progress bar. Only a completed task fills it; any
// other ending leaves it at the last reported percentage.
func (c *console) endBar(completed bool) {
	if c.bar == nil {
		return
	}
	if completed {
		_ = c.bar.Finish()
	} else {
		_ = c.bar.Exit()
	}
	fmt.Fprintln(c.w)
	c.bar = nil
}

func (c *console) stopSpinner() {
	if c.spin != nil {
		c.spin.Stop()
		c.spin = nil
	}
}

// line prints a message, lifting the progress bar out of the way first.
func (c *console) line(col *color.Color, mark, taskID, msg string) {
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	prefix := mark + " "
	if c.multi && taskID != "" {
		prefix += "[" + c.names[taskID] + "] "
	}
	col.Fprintln(c.w, prefix+msg)
}

func (c *console) close() {
	c.stopSpinner()
	c.endBar(false)
}
