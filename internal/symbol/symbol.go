// Package symbol encodes small vectors, cyclic integers, compass directions
// and 2x2 transforms as single printable characters, and tabulates the
// operations between them.
//
// The alphabet is the 94 characters from '!' (33) to '~' (126). A vector in
// [-4,4]² maps to '(' + (x+4) + 9(y+4); anything outside that square maps to
// Sentinel. Integers are cyclic modulo 94. Every binary operation is a lookup
// into a table built once at init.
package symbol

import "slices"

const (
	// First is the lowest character in the alphabet.
	First = 33
	// Last is the highest character in the alphabet.
	Last = 126
	// Size is the number of characters in the alphabet.
	Size = Last + 1 - First
	// Sentinel stands for a vector that has no character.
	Sentinel byte = '~'

	firstVec = 40
	vecSpan  = 9
	maxCoord = 4
)

// Dirs lists the absolute directions in draw order: a random direction is
// Dirs[r%4] or Dirs[r>>30].
var Dirs = [4]string{"N", "E", "S", "W"}

var dirVec = map[string][2]int{
	"N": {0, -1},
	"E": {1, 0},
	"S": {0, 1},
	"W": {-1, 0},
}

// Matrices names the rotations and reflections: identity (F), right (R),
// back (B), left (L), horizontal flip (H), vertical flip (V).
var Matrices = [6]string{"F", "R", "B", "L", "H", "V"}

var matrixValues = [6][2][2]int{
	{{1, 0}, {0, 1}},
	{{0, -1}, {1, 0}},
	{{-1, 0}, {0, -1}},
	{{0, 1}, {-1, 0}},
	{{-1, 0}, {0, 1}},
	{{1, 0}, {0, -1}},
}

// Neighborhoods names the neighbor sets usable as character classes.
var Neighborhoods = [2]string{"moore", "neumann"}

var neighborhoodOffsets = [2][][2]int{
	{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {0, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}},
	{{0, -1}, {-1, 0}, {0, 0}, {1, 0}, {0, 1}},
}

type unaryTable [Size]byte
type binaryTable [Size][Size]byte

var (
	vecAdd  binaryTable
	vecSub  binaryTable
	intAdd  binaryTable
	intSub  binaryTable
	matMul  [len(Matrices)]unaryTable
	clock   unaryTable
	anti    unaryTable
	nbhd    [len(Neighborhoods)][Size]string
	dirChar = map[string]byte{}
)

func init() {
	for d, v := range dirVec {
		dirChar[d] = VecChar(v[0], v[1])
	}

	for i := 0; i < Size; i++ {
		a := byte(First + i)
		ax, ay, aok := Vec(a)
		for j := 0; j < Size; j++ {
			b := byte(First + j)
			bx, by, bok := Vec(b)
			if aok && bok {
				vecAdd[i][j] = VecChar(ax+bx, ay+by)
				vecSub[i][j] = VecChar(ax-bx, ay-by)
			} else {
				vecAdd[i][j] = Sentinel
				vecSub[i][j] = Sentinel
			}
			intAdd[i][j] = IntChar(Int(a) + Int(b))
			intSub[i][j] = IntChar(Int(a) - Int(b))
		}

		for k, mat := range matrixValues {
			if aok {
				matMul[k][i] = VecChar(mat[0][0]*ax+mat[0][1]*ay, mat[1][0]*ax+mat[1][1]*ay)
			} else {
				matMul[k][i] = Sentinel
			}
		}

		clock[i] = rotateClockwise(a)

		for k, offsets := range neighborhoodOffsets {
			nbhd[k][i] = neighborhoodOf(offsets, a)
		}
	}

	// Counter-clockwise is the inverse permutation of clockwise.
	for i := 0; i < Size; i++ {
		anti[clock[i]-First] = byte(First + i)
	}
}

func index(c byte) (int, bool) {
	if c < First || c > Last {
		return 0, false
	}
	return int(c) - First, true
}

// VecChar encodes a vector, or returns Sentinel when it is out of range.
func VecChar(x, y int) byte {
	if x < -maxCoord || x > maxCoord || y < -maxCoord || y > maxCoord {
		return Sentinel
	}
	return byte(firstVec + (x + maxCoord) + (y+maxCoord)*vecSpan)
}

// Vec decodes a vector character. ok is false for characters that do not
// encode a vector.
func Vec(c byte) (x, y int, ok bool) {
	n := int(c) - firstVec
	if n < 0 || n >= vecSpan*vecSpan {
		return 0, 0, false
	}
	return n%vecSpan - maxCoord, n/vecSpan - maxCoord, true
}

// IntChar encodes an integer modulo the alphabet size.
func IntChar(n int) byte {
	return byte(First + ((n%Size)+Size)%Size)
}

// Int decodes a character as a cyclic integer.
func Int(c byte) int {
	return ((int(c)-First)%Size + Size) % Size
}

// DirChar returns the vector character of an absolute direction (N, E, S, W).
func DirChar(dir string) (byte, bool) {
	c, ok := dirChar[dir]
	return c, ok
}

// MatrixIndex returns the table index of a named matrix.
func MatrixIndex(name string) (int, bool) {
	for i, m := range Matrices {
		if m == name {
			return i, true
		}
	}
	return 0, false
}

// Add returns the vector sum a+b.
func Add(a, b byte) byte {
	i, iok := index(a)
	j, jok := index(b)
	if !iok || !jok {
		return Sentinel
	}
	return vecAdd[i][j]
}

// Sub returns the vector difference a-b.
func Sub(a, b byte) byte {
	i, iok := index(a)
	j, jok := index(b)
	if !iok || !jok {
		return Sentinel
	}
	return vecSub[i][j]
}

// IntAdd returns the cyclic integer sum a+b.
func IntAdd(a, b byte) byte {
	i, iok := index(a)
	j, jok := index(b)
	if !iok || !jok {
		return Sentinel
	}
	return intAdd[i][j]
}

// IntSub returns the cyclic integer difference a-b.
func IntSub(a, b byte) byte {
	i, iok := index(a)
	j, jok := index(b)
	if !iok || !jok {
		return Sentinel
	}
	return intSub[i][j]
}

// Mul applies the named matrix to a vector character. Unknown matrix names
// yield Sentinel.
func Mul(matrix string, c byte) byte {
	k, ok := MatrixIndex(matrix)
	i, iok := index(c)
	if !ok || !iok {
		return Sentinel
	}
	return matMul[k][i]
}

// Clockwise steps a vector one position clockwise around the square ring of
// its Chebyshev radius. The zero vector and non-vectors are unchanged.
func Clockwise(c byte) byte {
	i, ok := index(c)
	if !ok {
		return c
	}
	return clock[i]
}

// CounterClockwise is the inverse of Clockwise.
func CounterClockwise(c byte) byte {
	i, ok := index(c)
	if !ok {
		return c
	}
	return anti[i]
}

// Neighborhood returns the sorted characters of the in-range neighbors of c
// under the named neighborhood (moore or neumann), including c itself.
func Neighborhood(name string, c byte) (string, bool) {
	i, ok := index(c)
	if !ok {
		return "", false
	}
	for k, n := range Neighborhoods {
		if n == name {
			return nbhd[k][i], true
		}
	}
	return "", false
}

// RelativeDir rotates an absolute direction character by a named matrix:
// "F" returns it unchanged, "R" turns it right, and so on.
func RelativeDir(matrix string, dir byte) byte {
	return Mul(matrix, dir)
}

func rotateClockwise(c byte) byte {
	x, y, ok := Vec(c)
	if !ok || (x == 0 && y == 0) {
		return c
	}
	r := max(abs(x), abs(y))
	switch {
	case x == -r:
		if y == -r {
			return VecChar(x+1, y)
		}
		return VecChar(x, y-1)
	case y == -r:
		if x == r {
			return VecChar(x, y+1)
		}
		return VecChar(x+1, y)
	case x == r:
		if y == r {
			return VecChar(x-1, y)
		}
		return VecChar(x, y+1)
	default:
		return VecChar(x-1, y)
	}
}

func neighborhoodOf(offsets [][2]int, c byte) string {
	x, y, ok := Vec(c)
	if !ok {
		return ""
	}
	chars := make([]byte, 0, len(offsets))
	for _, o := range offsets {
		if n := VecChar(x+o[0], y+o[1]); n != Sentinel {
			chars = append(chars, n)
		}
	}
	slices.Sort(chars)
	return string(chars)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
