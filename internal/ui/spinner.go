package ui

import (
	"fmt"
	"time"
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a progress line while a blocking command runs. It is
// silent when the display is not a terminal.
type Spinner struct {
	d    *Display
	done chan struct{}
	exit chan struct{}
}

// StartSpinner displays a spinner with a message until Stop is called
func (d *Display) StartSpinner(msg string) *Spinner {
	s := &Spinner{d: d, done: make(chan struct{}), exit: make(chan struct{})}
	if !d.tty {
		close(s.exit)
		return s
	}

	go func() {
		defer close(s.exit)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(spinnerChars) {
			d.mu.Lock()
			fmt.Fprintf(d.out, "\r%s %s", d.info.Sprint(spinnerChars[i]), msg)
			d.mu.Unlock()
			select {
			case <-s.done:
				// Clear the spinner line
				d.mu.Lock()
				fmt.Fprint(d.out, "\r\033[2K\r")
				d.mu.Unlock()
				return
			case <-ticker.C:
			}
		}
	}()
	return s
}

// Stop stops the spinner and clears its line
func (s *Spinner) Stop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.exit
}
