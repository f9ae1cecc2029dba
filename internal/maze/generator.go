// Package maze implements perfect-maze generation and path analysis.
package maze

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/mazeportal/maze-api/internal/domain"
)

// MaxSide caps a single maze dimension.
const MaxSide = 1000

// itemSideThreshold: both dimensions must exceed this for a collectible
// to be placed.
const itemSideThreshold = 10

var itemTypes = []string{"apple", "orange", "banana", "cherry"}

var ErrInvalidSize = errors.New("maze dimensions must be positive")

// Generator produces mazes using the supplied random source.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a Generator backed by rng. Passing nil seeds a new
// source from the wall clock; tests inject a fixed seed for determinism.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Generator{rng: rng}
}

// Entry returns the fixed entry cell for a maze of the given size: the
// bottom-left corner (0, h-1).
func Entry(size domain.MazeSize) domain.Position {
	return domain.Position{X: 0, Y: size.Height - 1}
}

// Carve builds a perfect maze of the given dimensions with a randomized
// depth-first backtracker. Every cell is visited exactly once, so the
// cleared walls form a spanning tree over the grid.
func (g *Generator) Carve(width, height int) ([][]domain.Cell, error) {
	if width < 1 || height < 1 {
		return nil, ErrInvalidSize
	}
	if width > MaxSide || height > MaxSide {
		return nil, fmt.Errorf("maze side exceeds %d: %dx%d", MaxSide, width, height)
	}

	matrix := make([][]domain.Cell, height)
	for y := range matrix {
		matrix[y] = make([]domain.Cell, width)
		for x := range matrix[y] {
			matrix[y][x] = domain.Cell{
				X:     x,
				Y:     y,
				Walls: domain.Walls{Top: true, Right: true, Bottom: true, Left: true},
			}
		}
	}

	entry := Entry(domain.MazeSize{Width: width, Height: height})
	stack := []domain.Position{entry}
	visited := make([]bool, width*height)
	visited[entry.Y*width+entry.X] = true

	for len(stack) > 0 {
		cur := stack[len(stack)-1]

		var candidates []int
		for dir, d := range directions {
			nx, ny := cur.X+d.dx, cur.Y+d.dy
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			if !visited[ny*width+nx] {
				candidates = append(candidates, dir)
			}
		}

		if len(candidates) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		dir := candidates[g.rng.Intn(len(candidates))]
		d := directions[dir]
		next := domain.Position{X: cur.X + d.dx, Y: cur.Y + d.dy}

		clearWall(&matrix[cur.Y][cur.X].Walls, dir)
		clearWall(&matrix[next.Y][next.X].Walls, opposite(dir))

		visited[next.Y*width+next.X] = true
		stack = append(stack, next)
	}

	return matrix, nil
}

// FarthestPoint runs a breadth-first search from start, treating a cleared
// shared wall as an edge, and returns the first cell reaching the maximum
// depth along with that depth. Neighbor order is fixed (top, right,
// bottom, left) so ties resolve deterministically.
func FarthestPoint(matrix [][]domain.Cell, start domain.Position) (domain.Position, int) {
	height := len(matrix)
	if height == 0 {
		return start, 0
	}
	width := len(matrix[0])

	type node struct {
		pos   domain.Position
		depth int
	}

	visited := make([]bool, width*height)
	visited[start.Y*width+start.X] = true

	queue := []node{{pos: start}}
	farthest := node{pos: start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.depth > farthest.depth {
			farthest = cur
		}

		walls := matrix[cur.pos.Y][cur.pos.X].Walls
		for dir, d := range directions {
			if hasWall(walls, dir) {
				continue
			}
			nx, ny := cur.pos.X+d.dx, cur.pos.Y+d.dy
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			if visited[ny*width+nx] {
				continue
			}
			visited[ny*width+nx] = true
			queue = append(queue, node{pos: domain.Position{X: nx, Y: ny}, depth: cur.depth + 1})
		}
	}

	return farthest.pos, farthest.depth
}

// NextSize grows exactly one dimension of the last completed size by one.
// When both sides are below MaxSide the grown side is chosen at random;
// when only one is, that side grows; once both are saturated the size no
// longer changes. A user with no completed maze starts from 1x1.
func (g *Generator) NextSize(last *domain.MazeSize) domain.MazeSize {
	size := domain.MazeSize{Width: 1, Height: 1}
	if last != nil {
		size = *last
	}

	switch {
	case size.Width < MaxSide && size.Height < MaxSide:
		if g.rng.Intn(2) == 0 {
			size.Width++
		} else {
			size.Height++
		}
	case size.Width < MaxSide:
		size.Width++
	case size.Height < MaxSide:
		size.Height++
	}

	return size
}

// NewForUser generates the next maze for user: sized by the sizing policy,
// carved, analyzed for the farthest cell, colored, and stamped with the
// generation time. The caller owns persistence.
func (g *Generator) NewForUser(user *domain.User, now time.Time) (*domain.Maze, error) {
	size := g.NextSize(user.LastMazeSize)

	matrix, err := g.Carve(size.Width, size.Height)
	if err != nil {
		return nil, err
	}

	entry := Entry(size)
	finish, moves := FarthestPoint(matrix, entry)

	m := &domain.Maze{
		MazeID:         uuid.NewString(),
		UserID:         user.UserID,
		Size:           size,
		Matrix:         matrix,
		WallColor:      g.randomColor(128),
		FloorColor:     g.randomColor(128),
		PlayerColor:    g.randomColor(64),
		PortalColor:    g.randomColor(64),
		FinishPosition: finish,
		PlayerPosition: entry,
		StartTime:      now.UnixMilli(),
		NumberOfMoves:  moves,
	}

	if size.Width > itemSideThreshold && size.Height > itemSideThreshold {
		m.Item = g.randomItem(size, entry, finish)
	}

	return m, nil
}

// randomItem places a collectible on a uniformly random cell distinct from
// the entry and the finish.
func (g *Generator) randomItem(size domain.MazeSize, entry, finish domain.Position) *domain.Item {
	var x, y int
	for {
		x = g.rng.Intn(size.Width)
		y = g.rng.Intn(size.Height)
		if (x != entry.X || y != entry.Y) && (x != finish.X || y != finish.Y) {
			break
		}
	}

	return &domain.Item{
		X:    x,
		Y:    y,
		Type: itemTypes[g.rng.Intn(len(itemTypes))],
	}
}

// randomColor builds a #rrggbb hex color with each channel drawn from
// [plus, plus+128). Wall and floor colors use the brighter offset.
func (g *Generator) randomColor(plus int) string {
	r := g.rng.Intn(128) + plus
	gr := g.rng.Intn(128) + plus
	b := g.rng.Intn(128) + plus

	return fmt.Sprintf("#%02x%02x%02x", r, gr, b)
}

type direction struct {
	dx, dy int
}

// Index order matters: top, right, bottom, left.
var directions = [4]direction{
	{0, -1},
	{1, 0},
	{0, 1},
	{-1, 0},
}

const (
	dirTop = iota
	dirRight
	dirBottom
	dirLeft
)

func opposite(dir int) int {
	return (dir + 2) % 4
}

func clearWall(w *domain.Walls, dir int) {
	switch dir {
	case dirTop:
		w.Top = false
	case dirRight:
		w.Right = false
	case dirBottom:
		w.Bottom = false
	case dirLeft:
		w.Left = false
	}
}

func hasWall(w domain.Walls, dir int) bool {
	switch dir {
	case dirTop:
		return w.Top
	case dirRight:
		return w.Right
	case dirBottom:
		return w.Bottom
	default:
		return w.Left
	}
}
