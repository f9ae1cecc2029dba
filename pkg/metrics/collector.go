// Package metrics exposes Prometheus collectors for the game API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/game"
)

var (
	gameActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_actions_total",
			Help: "Total number of game actions labeled by action and status",
		},
		[]string{"action", "status"},
	)
	actionDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "game_action_duration_seconds",
			Help:    "Duration of game actions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
	mazesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mazes_generated_total",
			Help: "Total number of mazes generated",
		},
	)
	mazeCells = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maze_cells",
			Help:    "Cell count of generated mazes",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	cheatDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cheat_detections_total",
			Help: "Total number of finishes rejected by the anti-cheat baseline",
		},
	)
	sessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
)

func init() {
	game.RegisterTransitionRecorder(RecordSessionTransition)
	game.RegisterMazeRecorder(RecordMazeGenerated)
	game.RegisterCheatRecorder(RecordCheatDetection)
	apperrors.RegisterErrorRecorder(RecordError)
}

// RecordAction increments action counters and records duration.
func RecordAction(action, status string, duration time.Duration) {
	if action == "" {
		action = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	gameActionsTotal.WithLabelValues(action, status).Inc()
	actionDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordMazeGenerated tracks a freshly generated maze and its size.
func RecordMazeGenerated(width, height int) {
	mazesGeneratedTotal.Inc()
	mazeCells.Observe(float64(width * height))
}

// RecordCheatDetection counts an anti-cheat rejection.
func RecordCheatDetection() {
	cheatDetectionsTotal.Inc()
}

// RecordSessionTransition tracks derived session-state transitions.
func RecordSessionTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	sessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	if code == "" {
		code = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(code, severity).Inc()
}
