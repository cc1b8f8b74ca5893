package progress

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// LogSink emits one structured log line per update, for non-interactive
// invocations (piped stdout, CI, or -v without a tty).
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink that writes through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Update(s Snapshot) {
	l.logger.Info("transfer progress",
		slog.String("task_id", s.TaskID),
		slog.String("transferred", humanize.Bytes(uint64(s.Transferred))),
		slog.String("total", humanize.Bytes(uint64(s.TotalSize))),
		slog.Float64("percent", s.Percent),
		slog.String("speed", humanize.Bytes(uint64(s.SpeedBps))+"/s"),
		slog.Duration("eta", s.ETA),
		slog.Int("active_chunks", s.ActiveChunks),
	)
}

func (l *LogSink) Finish(s Snapshot) {
	l.logger.Info("transfer complete",
		slog.String("task_id", s.TaskID),
		slog.String("transferred", humanize.Bytes(uint64(s.Transferred))),
	)
}
