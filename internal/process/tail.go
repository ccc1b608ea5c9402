package process

import (
	"io"
	"os"
	"strings"
	"sync"
)

// defaultTailSize bounds the captured process output.
const defaultTailSize = 4096

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// Write implements io.Writer. It never fails.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the captured tail with surrounding whitespace removed.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// lastLine returns the last non-empty line, used in one-line diagnostics.
func (t *tailBuffer) lastLine() string {
	s := t.String()
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// readFileTail replaces the buffer content with the end of a file.
func (t *tailBuffer) readFileTail(path string) {
	f, err := os.Open(path) //nolint:gosec // path is our own output file
	if err != nil {
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() > int64(t.limit) {
		if _, err := f.Seek(-int64(t.limit), io.SeekEnd); err != nil {
			return
		}
	}
	data, err := io.ReadAll(io.LimitReader(f, int64(t.limit)))
	if err != nil {
		return
	}
	t.mu.Lock()
	t.buf = data
	t.mu.Unlock()
}
