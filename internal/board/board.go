// Package board implements Connect Four rules on a fixed 6x7 grid.
//
// Row 0 is the top row; discs fall towards row Rows-1. Cells hold
// Empty or the player number (1 or 2) that occupies them.
package board

const (
	Rows   = 6
	Cols   = 7
	WinLen = 4

	Empty = 0
)

// Grid is the whole board. It is a value type so a drop never aliases
// the caller's copy; persistence always replaces it wholesale.
type Grid [Rows][Cols]int

// New returns an empty board.
func New() Grid { return Grid{} }

// Drop places piece into col and returns the updated grid and the row it
// landed on. ok is false when col is out of range or the column is full,
// in which case the returned grid equals g.
func Drop(g Grid, col, piece int) (Grid, int, bool) {
	if ColumnFull(g, col) {
		return g, -1, false
	}
	r := Rows - 1
	for g[r][col] != Empty {
		r--
	}
	g[r][col] = piece
	return g, r, true
}

// CheckWin reports whether the disc at (row,col) completes a line of at
// least WinLen discs of piece horizontally, vertically or on a diagonal.
func CheckWin(g Grid, row, col, piece int) bool {
	if row < 0 || row >= Rows || col < 0 || col >= Cols || piece == Empty {
		return false
	}
	if g[row][col] != piece {
		return false
	}
	dirs := [][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}
	for _, d := range dirs {
		count := 1

		r, c := row+d[0], col+d[1]
		for inBounds(r, c) && g[r][c] == piece {
			count++
			r += d[0]
			c += d[1]
		}

		r, c = row-d[0], col-d[1]
		for inBounds(r, c) && g[r][c] == piece {
			count++
			r -= d[0]
			c -= d[1]
		}

		if count >= WinLen {
			return true
		}
	}
	return false
}

// IsFull reports whether no column accepts another disc.
func IsFull(g Grid) bool {
	for c := 0; c < Cols; c++ {
		if g[0][c] == Empty {
			return false
		}
	}
	return true
}

// ColumnFull reports whether col cannot take another disc. Out of range
// columns count as full.
func ColumnFull(g Grid, col int) bool {
	if col < 0 || col >= Cols {
		return true
	}
	return g[0][col] != Empty
}

func inBounds(r, c int) bool { return r >= 0 && r < Rows && c >= 0 && c < Cols }
