package game

import (
	"errors"
	"strings"
	"testing"
)

func TestDropGravityAndTurns(t *testing.T) {
	b := NewBoard()
	if b.Turn() != 1 {
		t.Fatalf("expected player 1 to start, got %d", b.Turn())
	}
	if err := b.Drop(3); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got := b.Cell(Rows-1, 3); got != 1 {
		t.Fatalf("expected piece at bottom of column 3, got %d", got)
	}
	if b.Turn() != 2 {
		t.Fatalf("expected turn to pass to player 2, got %d", b.Turn())
	}
	if err := b.Drop(3); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if got := b.Cell(Rows-2, 3); got != 2 {
		t.Fatalf("expected second piece stacked above, got %d", got)
	}
}

func TestDropInvalid(t *testing.T) {
	b := NewBoard()
	tests := []struct {
		name string
		col  int
	}{
		{"negative", -1},
		{"too large", Cols},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.Drop(tt.col); !errors.Is(err, ErrInvalidMove) {
				t.Fatalf("expected ErrInvalidMove, got %v", err)
			}
		})
	}
}

func TestDropFullColumn(t *testing.T) {
	b := NewBoard()
	for i := 0; i < Rows; i++ {
		if err := b.Drop(0); err != nil {
			t.Fatalf("fill drop %d: %v", i, err)
		}
	}
	if b.CanDrop(0) {
		t.Fatal("expected full column to reject drops")
	}
	if err := b.Drop(0); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestWinDetection(t *testing.T) {
	tests := []struct {
		name   string
		moves  []int
		winner int
	}{
		{"horizontal p1", []int{0, 0, 1, 1, 2, 2, 3}, 1},
		{"vertical p1", []int{0, 1, 0, 1, 0, 1, 0}, 1},
		{"vertical p2", []int{0, 6, 1, 6, 2, 6, 0, 6}, 2},
		// Rising diagonal for p1: stacks in columns 1..3 set up the slope.
		{"diagonal up", []int{0, 1, 1, 2, 2, 3, 2, 3, 3, 5, 3}, 1},
		// Falling diagonal mirrors the same build on columns 3..6.
		{"diagonal down", []int{6, 5, 5, 4, 4, 3, 4, 3, 3, 1, 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Replay(tt.moves)
			if err != nil {
				t.Fatalf("replay: %v", err)
			}
			if b.Winner() != tt.winner {
				t.Fatalf("expected winner %d, got %d\n%s", tt.winner, b.Winner(), b.AsciiGrid())
			}
			if b.CanDrop(0) {
				t.Fatal("expected finished game to reject drops")
			}
		})
	}
}

func TestNoFalseWin(t *testing.T) {
	b, err := Replay([]int{0, 1, 0, 1, 0, 1})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if b.Winner() != 0 {
		t.Fatalf("expected no winner yet, got %d", b.Winner())
	}
}

func TestDraw(t *testing.T) {
	// Column pairs are interleaved so each column fills with two-piece
	// blocks and no four in a row ever forms.
	moves := []int{}
	for _, pair := range [][2]int{{0, 1}, {2, 3}, {4, 5}} {
		a, c := pair[0], pair[1]
		moves = append(moves, a, c, a, c, c, a, c, a, a, c, a, c)
	}
	for i := 0; i < Rows; i++ {
		moves = append(moves, 6)
	}
	b, err := Replay(moves)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if b.Winner() != 0 {
		t.Fatalf("expected no winner, got %d\n%s", b.Winner(), b.AsciiGrid())
	}
	if !b.IsDraw() {
		t.Fatalf("expected draw\n%s", b.AsciiGrid())
	}
	if !b.Over() {
		t.Fatal("expected game over")
	}
	if len(b.ValidMoves()) != 0 {
		t.Fatalf("expected no valid moves, got %v", b.ValidMoves())
	}
}

func mustDrop(t *testing.T, b *Board, col int) {
	t.Helper()
	if err := b.Drop(col); err != nil {
		t.Fatalf("drop %d: %v", col, err)
	}
}

func TestValidMoves(t *testing.T) {
	b := NewBoard()
	if got := len(b.ValidMoves()); got != Cols {
		t.Fatalf("expected %d valid moves, got %d", Cols, got)
	}
	for i := 0; i < Rows; i++ {
		mustDrop(t, b, 2)
	}
	for _, c := range b.ValidMoves() {
		if c == 2 {
			t.Fatal("expected full column 2 excluded from valid moves")
		}
	}
}

func TestAsciiGrid(t *testing.T) {
	b := NewBoard()
	mustDrop(t, b, 0)
	mustDrop(t, b, 0)
	grid := b.AsciiGrid()
	lines := strings.Split(grid, "\n")
	if len(lines) != Rows+1 {
		t.Fatalf("expected %d lines, got %d", Rows+1, len(lines))
	}
	if !strings.HasPrefix(lines[Rows], "|X|") {
		t.Fatalf("expected p1 piece at bottom left, got %q", lines[Rows])
	}
	if !strings.HasPrefix(lines[Rows-1], "|O|") {
		t.Fatalf("expected p2 piece stacked above, got %q", lines[Rows-1])
	}
}

func TestColumnSummary(t *testing.T) {
	b := NewBoard()
	mustDrop(t, b, 3)
	mustDrop(t, b, 3)
	summary := b.ColumnSummary()
	if !strings.Contains(summary, "Column 3: P1, P2") {
		t.Fatalf("expected column 3 listed bottom-up, got:\n%s", summary)
	}
	if !strings.Contains(summary, "Column 0: Empty") {
		t.Fatalf("expected empty column marker, got:\n%s", summary)
	}
}
