package history

import (
	"context"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/types"
)

// TruncationReducer drops the oldest messages up to a safe boundary,
// keeping roughly the most recent TargetCount messages plus any pinned
// leading system message.
type TruncationReducer struct {
	cfg    ReducerConfig
	logger *zap.Logger
}

// NewTruncationReducer creates a TruncationReducer. logger may be nil.
func NewTruncationReducer(cfg ReducerConfig, logger *zap.Logger) *TruncationReducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TruncationReducer{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "truncation_reducer")),
	}
}

// Config returns the reducer's budget configuration.
func (r *TruncationReducer) Config() ReducerConfig {
	return r.cfg
}

// Reduce implements Reducer.
func (r *TruncationReducer) Reduce(_ context.Context, msgs []types.Message) ([]types.Message, bool, error) {
	idx, ok := safeReductionIndex(msgs, r.cfg)
	if !ok {
		r.logger.Debug("no safe reduction index, transcript unchanged",
			zap.Int("length", len(msgs)),
			zap.Int("target", r.cfg.TargetCount),
			zap.Int("threshold", r.cfg.ThresholdCount),
		)
		return msgs, false, nil
	}

	offset := pinnedOffset(msgs)
	reduced := make([]types.Message, 0, offset+len(msgs)-idx)
	reduced = append(reduced, msgs[:offset]...)
	reduced = append(reduced, msgs[idx:]...)

	r.logger.Debug("transcript truncated",
		zap.Int("before", len(msgs)),
		zap.Int("after", len(reduced)),
	)
	return reduced, true, nil
}

// Equal implements Reducer. Two truncation reducers are equal iff their
// TargetCount and ThresholdCount match.
func (r *TruncationReducer) Equal(other Reducer) bool {
	o, ok := other.(*TruncationReducer)
	return ok && r.cfg.sameBudget(o.cfg)
}

var _ Reducer = (*TruncationReducer)(nil)
