package game

import (
	"time"

	"github.com/mazeportal/maze-api/internal/domain"
)

// State represents a session state derived from the (User, Maze) pair.
// It is never stored; every request re-derives it from the records.
type State string

const (
	// StateNew indicates that no user record exists yet.
	StateNew State = "new"
	// StateActiveNoMaze indicates a known user with no unpassed maze.
	StateActiveNoMaze State = "active_no_maze"
	// StateActiveInMaze indicates a known user with an unpassed maze.
	StateActiveInMaze State = "active_in_maze"
	// StateBlocked indicates the user is serving an anti-cheat block.
	StateBlocked State = "blocked"
)

// validTransitions contains the permitted non-block transitions.
var validTransitions = map[State][]State{
	StateNew: {
		StateActiveNoMaze,
	},
	StateActiveNoMaze: {
		StateActiveInMaze,
	},
	StateActiveInMaze: {
		StateActiveNoMaze,
	},
	StateBlocked: {
		StateActiveNoMaze,
		StateActiveInMaze,
	},
}

// IsTransitionAllowed reports whether moving from one state to another is
// valid. A block may be entered from any state.
func IsTransitionAllowed(from, to State) bool {
	if to == StateBlocked {
		return true
	}

	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, state := range allowed {
		if state == to {
			return true
		}
	}

	return false
}

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe session
// state transitions, e.g. for metrics.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

var (
	mazeRecorder  = func(width, height int) {}
	cheatRecorder = func() {}
)

// RegisterMazeRecorder allows external packages to observe maze generation.
func RegisterMazeRecorder(recorder func(width, height int)) {
	if recorder == nil {
		mazeRecorder = func(int, int) {}
		return
	}

	mazeRecorder = recorder
}

// RegisterCheatRecorder allows external packages to observe anti-cheat
// rejections.
func RegisterCheatRecorder(recorder func()) {
	if recorder == nil {
		cheatRecorder = func() {}
		return
	}

	cheatRecorder = recorder
}

// DeriveState computes the session state for a user and their current
// maze (nil when none or already passed) at the given instant.
func DeriveState(user *domain.User, maze *domain.Maze, now time.Time) State {
	if user == nil {
		return StateNew
	}
	if user.Blocked(now) {
		return StateBlocked
	}
	if maze != nil && !maze.Passed {
		return StateActiveInMaze
	}

	return StateActiveNoMaze
}
