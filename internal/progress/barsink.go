package progress

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// BarSink renders progress as a terminal progress bar, for interactive CLI
// invocations that aren't piped or run with -q.
type BarSink struct {
	bar *progressbar.ProgressBar
}

// NewBarSink creates a bar sized to totalSize bytes with the given label
// (typically the destination basename).
func NewBarSink(totalSize int64, label string) *BarSink {
	bar := progressbar.NewOptions64(totalSize,
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(50),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)
	return &BarSink{bar: bar}
}

func (b *BarSink) Update(s Snapshot) {
	_ = b.bar.Set64(s.Transferred)
	b.bar.Describe(fmt.Sprintf("%s/s  eta %s", humanize.Bytes(uint64(s.SpeedBps)), s.ETA.Round(1e9)))
}

func (b *BarSink) Finish(s Snapshot) {
	_ = b.bar.Set64(s.Transferred)
	_ = b.bar.Finish()
}
