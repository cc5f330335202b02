package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel/types"
)

// Summarizer compresses a message prefix into a single summary string via a
// delegated completion call. Implementations live outside this module.
type Summarizer interface {
	Summarize(ctx context.Context, messages []types.Message) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []types.Message) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []types.Message) (string, error) {
	return f(ctx, messages)
}

// SummarizationReducer replaces the dropped prefix with one synthesized
// summary message. A prior summary message in the prefix is fed back into
// the summarizer, so repeated reductions fold older summaries forward.
//
// Summarizer failures surface as a SUMMARIZATION_FAILED error wrapping the
// delegate's error; the reducer does not retry internally.
type SummarizationReducer struct {
	cfg        ReducerConfig
	summarizer Summarizer
	logger     *zap.Logger
}

// NewSummarizationReducer creates a SummarizationReducer. logger may be nil.
func NewSummarizationReducer(cfg ReducerConfig, summarizer Summarizer, logger *zap.Logger) *SummarizationReducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummarizationReducer{
		cfg:        cfg,
		summarizer: summarizer,
		logger:     logger.With(zap.String("component", "summarization_reducer")),
	}
}

// Config returns the reducer's budget configuration.
func (r *SummarizationReducer) Config() ReducerConfig {
	return r.cfg
}

// Reduce implements Reducer.
func (r *SummarizationReducer) Reduce(ctx context.Context, msgs []types.Message) ([]types.Message, bool, error) {
	if r.summarizer == nil {
		return msgs, false, types.NewError(types.ErrMissingPredicate, "summarization reducer requires a summarizer")
	}

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
	prefix := msgs[offset:idx]
	if len(prefix) == 0 {
		return msgs, false, nil
	}

	summary, err := r.summarizer.Summarize(ctx, prefix)
	if err != nil {
		return msgs, false, types.NewError(types.ErrSummarizationFail,
			fmt.Sprintf("summarize %d messages", len(prefix))).WithCause(err)
	}

	summaryMsg := types.NewAssistantMessage(summary).
		WithMetadata(types.MetadataIsSummary, true)

	reduced := make([]types.Message, 0, offset+1+len(msgs)-idx)
	reduced = append(reduced, msgs[:offset]...)
	reduced = append(reduced, summaryMsg)
	reduced = append(reduced, msgs[idx:]...)

	r.logger.Debug("transcript summarized",
		zap.Int("before", len(msgs)),
		zap.Int("after", len(reduced)),
		zap.Int("summarized", len(prefix)),
	)
	return reduced, true, nil
}

// Equal implements Reducer. Two summarization reducers are equal iff their
// TargetCount and ThresholdCount match; the summarizer is irrelevant.
func (r *SummarizationReducer) Equal(other Reducer) bool {
	o, ok := other.(*SummarizationReducer)
	return ok && r.cfg.sameBudget(o.cfg)
}

var _ Reducer = (*SummarizationReducer)(nil)
