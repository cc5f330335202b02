package history

import (
	"context"

	"github.com/chatkernel/chatkernel/types"
)

// Reducer decides whether and how to shrink a message sequence.
// Reduce returns the new transcript and true, or the untouched input and
// false when no reduction was performed. Callers must substitute the
// returned slice for the original only when changed is true.
type Reducer interface {
	Reduce(ctx context.Context, msgs []types.Message) (reduced []types.Message, changed bool, err error)
	// Equal reports whether the other reducer is of the same kind with the
	// same budget configuration. Transcript contents are irrelevant.
	Equal(other Reducer) bool
}

// ReducerConfig holds the shared budget parameters.
type ReducerConfig struct {
	// TargetCount is the desired post-reduction message count.
	TargetCount int `json:"target_count" yaml:"target_count"`
	// ThresholdCount is the slack allowed past TargetCount before a
	// reduction triggers, so the transcript is not reduced on every
	// single new message.
	ThresholdCount int `json:"threshold_count" yaml:"threshold_count"`
	// CountSystemMessage includes a pinned leading system message in the
	// budget arithmetic. The system message itself is never dropped
	// regardless of this setting.
	CountSystemMessage bool `json:"count_system_message" yaml:"count_system_message"`
}

func (c ReducerConfig) sameBudget(o ReducerConfig) bool {
	return c.TargetCount == o.TargetCount && c.ThresholdCount == o.ThresholdCount
}

// pinnedOffset returns 1 when the transcript opens with a system message,
// which is pinned and excluded from cut-index selection.
func pinnedOffset(msgs []types.Message) int {
	if len(msgs) > 0 && msgs[0].Role == types.RoleSystem {
		return 1
	}
	return 0
}

// safeReductionIndex locates the earliest index at which msgs may be cut
// without separating a tool call from its result messages.
//
// The candidate index keeps the most recent TargetCount messages. When the
// message at the candidate is the result half of a call/result pair, the
// index walks backward (never forward) until it clears the pair, letting
// the kept window grow slightly past TargetCount. The walk is bounded by
// ThresholdCount steps; transcripts whose pairing cannot be resolved within
// that slack yield ok=false and are left unreduced.
func safeReductionIndex(msgs []types.Message, cfg ReducerConfig) (int, bool) {
	offset := pinnedOffset(msgs)
	body := msgs[offset:]

	budget := len(body)
	if cfg.CountSystemMessage {
		budget = len(msgs)
	}
	if budget <= cfg.TargetCount+cfg.ThresholdCount {
		return 0, false
	}

	idx := len(body) - cfg.TargetCount
	if idx <= 0 {
		return 0, false
	}

	floor := idx - cfg.ThresholdCount
	if floor < 0 {
		floor = 0
	}
	for idx > floor && body[idx].IsToolResult() {
		idx--
	}
	if body[idx].IsToolResult() {
		return 0, false
	}
	return offset + idx, true
}
