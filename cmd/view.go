package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/drgo/vidget"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var barTheme = progressbar.Theme{
	Saucer:        "=",
	SaucerHead:    ">",
	SaucerPadding: " ",
	BarStart:      "[",
	BarEnd:        "]",
}

// termView renders controller and auth output to a terminal. Status lines go
// to out (success) or errOut (errors); bars are drawn on out.
type termView struct {
	out, errOut io.Writer
	quiet       bool

	success *color.Color
	failure *color.Color
	label   *color.Color
	notice  *color.Color

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newTermView(out, errOut io.Writer, quiet, noColor bool) *termView {
	v := &termView{
		out:     out,
		errOut:  errOut,
		quiet:   quiet,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		label:   color.New(color.Bold),
		notice:  color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{v.success, v.failure, v.label, v.notice} {
			c.DisableColor()
		}
	}
	return v
}

func (v *termView) SetStatus(kind vidget.StatusKind, text string) {
	switch kind {
	case vidget.StatusSuccess:
		v.success.Fprintln(v.out, text)
	case vidget.StatusError:
		v.failure.Fprintln(v.errOut, text)
	}
}

func (v *termView) ClearResult() {}

func (v *termView) ShowProgress(visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !visible || v.quiet {
		v.closeBarLocked()
		return
	}
	v.closeBarLocked()
	v.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(v.out),
		progressbar.OptionSetDescription(vidget.StatusInitializing),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetTheme(barTheme),
	)
}

func (v *termView) SetProgress(p vidget.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bar == nil {
		return
	}
	v.bar.Describe(p.Status)
	_ = v.bar.Set(p.Percent)
	if p.State == vidget.ProgressStateReady || p.State == vidget.ProgressStateFailed {
		v.closeBarLocked()
	}
}

func (v *termView) closeBarLocked() {
	if v.bar == nil {
		return
	}
	_ = v.bar.Exit()
	fmt.Fprintln(v.out)
	v.bar = nil
}

func (v *termView) ShowLink(link vidget.Link) {
	v.label.Fprintf(v.out, "%s: ", link.Label)
	fmt.Fprintln(v.out, link.URL)
	if link.Notice != "" {
		v.notice.Fprintln(v.out, link.Notice)
	}
}

// RenderHistory is a no-op: the history command prints entries itself so
// it can show relative dates.
func (v *termView) RenderHistory([]vidget.HistoryRow) {}

// trackTransfer draws a byte bar for SaveFile updates until a Done update
// arrives or stop is closed. On stop, updates already queued are still
// drawn. The returned channel is closed once drawing has stopped.
func (v *termView) trackTransfer(ch <-chan vidget.TransferProgress, stop <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		var bar *progressbar.ProgressBar
		draw := func(p vidget.TransferProgress) bool {
			if bar == nil {
				total := p.TotalSize
				if total <= 0 {
					total = -1
				}
				bar = progressbar.NewOptions64(total,
					progressbar.OptionSetWriter(v.out),
					progressbar.OptionSetDescription(filepath.Base(p.Filepath)),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetWidth(30),
					progressbar.OptionSetTheme(barTheme),
				)
			}
			_ = bar.Set64(p.CurrentSize)
			return p.Done
		}
		defer func() {
			if bar != nil {
				_ = bar.Exit()
				fmt.Fprintln(v.out)
			}
		}()
		for {
			select {
			case p := <-ch:
				if draw(p) {
					return
				}
			case <-stop:
				for {
					select {
					case p := <-ch:
						if draw(p) {
							return
						}
					default:
						return
					}
				}
			}
		}
	}()
	return done
}
