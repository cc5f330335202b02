// Package history provides the chat transcript container and the reducers
// that keep it within a configured message budget.
//
// Two reduction strategies are provided. TruncationReducer drops the oldest
// messages outright; SummarizationReducer replaces the dropped prefix with a
// single synthesized summary message produced by a delegated Summarizer.
// Both locate the cut point with a shared safe-index search that never
// separates a tool call from its result messages.
package history
