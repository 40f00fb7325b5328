package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/himanishpuri/mousai/pkg/mousai"
)

const meterWidth = 30

// terminalView draws the controller's state and level meter. finished is
// closed the first time the controller returns to Idle after being busy.
type terminalView struct {
	out      io.Writer
	finished chan struct{}

	mu     sync.Mutex
	busy   bool
	closed bool
	notice *mousai.Notice
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out, finished: make(chan struct{})}
}

func (v *terminalView) ShowState(s mousai.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch s {
	case mousai.StateRecording:
		v.busy = true
	case mousai.StateProcessing:
		v.busy = true
		fmt.Fprintln(v.out, "\n⏳ Identifying...")
	case mousai.StateIdle:
		if v.busy && !v.closed {
			v.closed = true
			close(v.finished)
		}
	}
}

func (v *terminalView) ShowLevel(db float64) {
	fmt.Fprintf(v.out, "\r   %s %6.1f dBFS", meter(db), db)
}

func (v *terminalView) ShowNotice(n mousai.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = &n
}

func (v *terminalView) lastNotice() (mousai.Notice, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.notice == nil {
		return mousai.Notice{}, false
	}
	return *v.notice, true
}

// meter maps -60..0 dBFS onto a fixed-width bar.
func meter(db float64) string {
	frac := (db + 60) / 60
	switch {
	case frac < 0:
		frac = 0
	case frac > 1:
		frac = 1
	}
	n := int(frac * meterWidth)
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", meterWidth-n) + "]"
}
