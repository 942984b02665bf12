package scan

import (
	"io"
	"time"

	"github.com/jonboulle/clockwork"
)

// Pacer produces one tick per display frame.
type Pacer interface {
	Ticks() <-chan time.Time
	Stop()
}

type clockPacer struct {
	t clockwork.Ticker
}

// NewClockPacer ticks fps times per second on clock.
func NewClockPacer(clock clockwork.Clock, fps int) Pacer {
	if fps <= 0 {
		fps = 60
	}
	return &clockPacer{t: clock.NewTicker(time.Second / time.Duration(fps))}
}

func (p *clockPacer) Ticks() <-chan time.Time { return p.t.Chan() }

func (p *clockPacer) Stop() { p.t.Stop() }

// Haptics gives physical feedback on a detection.
type Haptics interface {
	Vibrate(d time.Duration)
}

// NopHaptics does nothing.
type NopHaptics struct{}

func (NopHaptics) Vibrate(time.Duration) {}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer
}

func (b Bell) Vibrate(time.Duration) {
	if b.W != nil {
		io.WriteString(b.W, "\a")
	}
}
