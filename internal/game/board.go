package game

import (
	"errors"
	"strconv"
	"strings"
)

const (
	Rows = 6
	Cols = 7

	winLength = 4
)

var ErrInvalidMove = errors.New("invalid_move")

// Board holds a Connect Four position. Row 0 is the top of the grid,
// row Rows-1 the bottom. Cell values: 0 empty, 1 player one, 2 player two.
type Board struct {
	cells  [Rows][Cols]int
	turn   int
	winner int
	filled int
}

func NewBoard() *Board {
	return &Board{turn: 1}
}

// Replay rebuilds a board by applying a column sequence from an empty
// position. It fails on the first move the engine rejects.
func Replay(columns []int) (*Board, error) {
	b := NewBoard()
	for _, col := range columns {
		if err := b.Drop(col); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Board) Turn() int   { return b.turn }
func (b *Board) Winner() int { return b.winner }

func (b *Board) Cell(row, col int) int {
	return b.cells[row][col]
}

// Grid returns a copy of the cells for serialization.
func (b *Board) Grid() [][]int {
	out := make([][]int, Rows)
	for r := 0; r < Rows; r++ {
		out[r] = make([]int, Cols)
		copy(out[r], b.cells[r][:])
	}
	return out
}

func (b *Board) CanDrop(col int) bool {
	if b.winner != 0 {
		return false
	}
	if col < 0 || col >= Cols {
		return false
	}
	return b.cells[0][col] == 0
}

func (b *Board) ValidMoves() []int {
	out := make([]int, 0, Cols)
	for c := 0; c < Cols; c++ {
		if b.CanDrop(c) {
			out = append(out, c)
		}
	}
	return out
}

// Drop places the current player's piece in col, letting it fall to the
// lowest empty row. The turn passes unless the move wins the game.
func (b *Board) Drop(col int) error {
	if !b.CanDrop(col) {
		return ErrInvalidMove
	}
	for r := Rows - 1; r >= 0; r-- {
		if b.cells[r][col] != 0 {
			continue
		}
		b.cells[r][col] = b.turn
		b.filled++
		if b.winFrom(r, col) {
			b.winner = b.turn
		} else {
			b.turn = 3 - b.turn
		}
		return nil
	}
	return ErrInvalidMove
}

func (b *Board) IsDraw() bool {
	return b.winner == 0 && b.filled == Rows*Cols
}

func (b *Board) Over() bool {
	return b.winner != 0 || b.IsDraw()
}

// winFrom checks for winLength in a row through the piece just placed at
// (row, col), scanning horizontal, vertical and both diagonals.
func (b *Board) winFrom(row, col int) bool {
	player := b.cells[row][col]
	dirs := [4][2]int{{0, 1}, {1, 0}, {1, -1}, {1, 1}}
	for _, d := range dirs {
		count := 1
		for _, sign := range []int{1, -1} {
			for i := 1; i < winLength; i++ {
				r := row + d[0]*i*sign
				c := col + d[1]*i*sign
				if r < 0 || r >= Rows || c < 0 || c >= Cols {
					break
				}
				if b.cells[r][c] != player {
					break
				}
				count++
			}
		}
		if count >= winLength {
			return true
		}
	}
	return false
}

// AsciiGrid renders the board for prompt consumption, top row first.
func (b *Board) AsciiGrid() string {
	symbols := [3]string{".", "X", "O"}
	var sb strings.Builder
	sb.WriteString(" ")
	for c := 0; c < Cols; c++ {
		if c > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strconv.Itoa(c))
	}
	for r := 0; r < Rows; r++ {
		sb.WriteString("\n|")
		for c := 0; c < Cols; c++ {
			if c > 0 {
				sb.WriteString("|")
			}
			sb.WriteString(symbols[b.cells[r][c]])
		}
		sb.WriteString("|")
	}
	return sb.String()
}

// ColumnSummary describes each column bottom-up, e.g. "Column 3: P1, P2".
func (b *Board) ColumnSummary() string {
	lines := make([]string, 0, Cols)
	for c := 0; c < Cols; c++ {
		pieces := []string{}
		for r := Rows - 1; r >= 0; r-- {
			v := b.cells[r][c]
			if v == 0 {
				break
			}
			pieces = append(pieces, "P"+strconv.Itoa(v))
		}
		desc := "Empty"
		if len(pieces) > 0 {
			desc = strings.Join(pieces, ", ")
		}
		lines = append(lines, "Column "+strconv.Itoa(c)+": "+desc)
	}
	return strings.Join(lines, "\n")
}
