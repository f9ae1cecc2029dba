// Package anticheat provides the completion-time baseline and the
// escalating block schedule for implausibly fast finishes.
package anticheat

import "time"

const (
	DefaultBaseBlock   = time.Hour
	DefaultMaxBlock    = 24 * time.Hour
	DefaultTimePerMove = 500 * time.Millisecond
)

// Policy holds the tunable anti-cheat parameters.
type Policy struct {
	baseBlock   time.Duration
	maxBlock    time.Duration
	timePerMove time.Duration
}

// NewPolicy builds a Policy; non-positive arguments fall back to the
// defaults above.
func NewPolicy(baseBlock, maxBlock, timePerMove time.Duration) *Policy {
	if baseBlock <= 0 {
		baseBlock = DefaultBaseBlock
	}
	if maxBlock <= 0 {
		maxBlock = DefaultMaxBlock
	}
	if timePerMove <= 0 {
		timePerMove = DefaultTimePerMove
	}

	return &Policy{
		baseBlock:   baseBlock,
		maxBlock:    maxBlock,
		timePerMove: timePerMove,
	}
}

// MinCompletionTime returns the minimum plausible completion time for a
// maze whose shortest path is moves steps long.
func (p *Policy) MinCompletionTime(moves int) time.Duration {
	if moves < 0 {
		return 0
	}

	return time.Duration(moves) * p.timePerMove
}

// NextBlockDuration returns the block to apply after a violation: the base
// duration on a first offense, twice the previous one on a repeat, capped
// at the ceiling. The previous duration is never reduced by this policy;
// expiry is purely time-based, so repeat offenders keep doubling from the
// last applied value.
func (p *Policy) NextBlockDuration(previous time.Duration) time.Duration {
	next := p.baseBlock
	if previous > 0 {
		next = previous * 2
	}
	if next > p.maxBlock {
		next = p.maxBlock
	}

	return next
}
