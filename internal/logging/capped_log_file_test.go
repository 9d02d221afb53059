package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCappedLogFileStaysUnderCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	w, err := newCappedLogFile(path, 1)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer w.Close()

	chunk := make([]byte, 512*1024)
	for i := 0; i < 3; i++ {
		if _, err := w.Write(chunk); err != nil {
			t.Fatalf("write chunk %d: %v", i, err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat log: %v", err)
	}
	if info.Size() > 1<<20 {
		t.Fatalf("expected log <= 1MB, got %d", info.Size())
	}
}

func TestCappedLogFileAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.log")
	w, err := newCappedLogFile(path, 1)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A closed writer reopens lazily and keeps appending.
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	w.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !bytes.Equal(got, []byte("first\nsecond\n")) {
		t.Fatalf("expected both lines kept, got %q", got)
	}
}
