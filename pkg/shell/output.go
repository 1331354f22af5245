package shell

import (
	"bytes"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
	cut bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.cut = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cut {
		// Drop the partial first line.
		if i := bytes.IndexByte(t.buf, '\n'); i >= 0 && i < len(t.buf)-1 {
			return "...\n" + string(t.buf[i+1:])
		}
	}
	return string(t.buf)
}

// lineLogger forwards complete lines to a debug logger.
type lineLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	cmd    string
	stream string
	buf    []byte
}

func newLineLogger(logger *log.Logger, cmd, stream string) *lineLogger {
	return &lineLogger{logger: logger, cmd: cmd, stream: stream}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line without newline.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	l.logger.Debug(string(bytes.TrimRight(line, "\r")), "cmd", l.cmd, "stream", l.stream)
}

func multi(w ...io.Writer) io.Writer { return io.MultiWriter(w...) }
