package logging

import (
	"os"
	"sync"
)

const defaultLogCapMB = 10

// cappedLogFile appends until a write would push the file past its
// size cap, then truncates and keeps writing. The oldest entries are
// dropped, not rotated aside.
type cappedLogFile struct {
	mu   sync.Mutex
	path string
	cap  int64
	f    *os.File
	n    int64
}

func newCappedLogFile(path string, capMB int) (*cappedLogFile, error) {
	if capMB <= 0 {
		capMB = defaultLogCapMB
	}
	w := &cappedLogFile{path: path, cap: int64(capMB) << 20}
	if err := w.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *cappedLogFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		if err := w.open(os.O_APPEND); err != nil {
			return 0, err
		}
	}
	if w.n+int64(len(p)) > w.cap {
		if err := w.open(os.O_TRUNC); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *cappedLogFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// open swaps in a fresh handle. O_APPEND picks up an existing file
// and its current size, O_TRUNC starts it over.
func (w *cappedLogFile) open(mode int) error {
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	w.n = 0
	if mode == os.O_APPEND {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return err
		}
		w.n = info.Size()
	}
	w.f = f
	return nil
}
