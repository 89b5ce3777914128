package procmanager

import (
	"bytes"
	"log/slog"
)

// logWriter logs every complete line written to it, e.g. the verification
// URL and code printed by `aws sso login` while it waits for the user.
type logWriter struct {
	logger *slog.Logger
	id     string
	stream string

	partial []byte
}

func newLogWriter(logger *slog.Logger, id, stream string) *logWriter {
	return &logWriter{logger: logger, id: id, stream: stream}
}

func (w *logWriter) Write(b []byte) (int, error) {
	w.partial = append(w.partial, b...)

	for {
		line, rest, ok := bytes.Cut(w.partial, []byte{'\n'})
		if !ok {
			break
		}

		w.log(line)
		w.partial = rest
	}

	return len(b), nil
}

// flush logs a trailing line that had no newline. Only call it once nothing
// else writes to w.
func (w *logWriter) flush() {
	w.log(w.partial)
	w.partial = nil
}

func (w *logWriter) log(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	w.logger.Info("process output", "id", w.id, "stream", w.stream, "line", string(line))
}
