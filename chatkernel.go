// Package chatkernel provides a top-level convenience entry point for
// wiring group chat orchestration, history reduction, and the actor
// runtime from a single configuration.
//
// Usage:
//
//	import "github.com/chatkernel/chatkernel"
//
//	cfg, _ := config.NewLoader().WithConfigPath("config.yaml").Load()
//	logger, _ := chatkernel.NewLogger(cfg.Log)
//	chat, _ := chatkernel.NewSequentialGroupChat(agents, termination, cfg, logger)
//
// The individual packages (groupchat, history, runtime) remain fully usable
// on their own; this package only assembles them.
package chatkernel

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chatkernel/chatkernel/config"
	"github.com/chatkernel/chatkernel/groupchat"
	"github.com/chatkernel/chatkernel/history"
	"github.com/chatkernel/chatkernel/runtime"
	"github.com/chatkernel/chatkernel/runtime/state"
	"github.com/chatkernel/chatkernel/types"
)

// Version is the chatkernel release version.
const Version = "0.1.0"

// NewLogger builds a zap logger from the log configuration.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// NewSequentialGroupChat assembles an orchestrator with round-robin
// selection and the given termination strategy.
func NewSequentialGroupChat(agents []types.Agent, termination groupchat.TerminationStrategy, cfg config.Config, logger *zap.Logger) (*groupchat.Orchestrator, error) {
	return groupchat.NewOrchestrator(
		agents,
		groupchat.NewSequentialSelection(logger),
		termination,
		groupchat.Config{MaximumIterations: cfg.Orchestration.MaximumIterations},
		logger,
	)
}

// NewSwarmGroupChat assembles an orchestrator with handoff-driven
// selection and the given termination strategy.
func NewSwarmGroupChat(agents []types.Agent, termination groupchat.TerminationStrategy, cfg config.Config, logger *zap.Logger) (*groupchat.Orchestrator, error) {
	return groupchat.NewOrchestrator(
		agents,
		groupchat.NewSwarmSelection(logger),
		termination,
		groupchat.Config{MaximumIterations: cfg.Orchestration.MaximumIterations},
		logger,
	)
}

// NewTruncationReducer builds a truncation reducer from configuration.
func NewTruncationReducer(cfg config.Config, logger *zap.Logger) *history.TruncationReducer {
	return history.NewTruncationReducer(reducerConfig(cfg.Reducer), logger)
}

// NewSummarizationReducer builds a summarization reducer from
// configuration and a delegated summarizer.
func NewSummarizationReducer(cfg config.Config, summarizer history.Summarizer, logger *zap.Logger) *history.SummarizationReducer {
	return history.NewSummarizationReducer(reducerConfig(cfg.Reducer), summarizer, logger)
}

// NewStateStore builds the configured durable state store.
func NewStateStore(cfg config.RuntimeConfig) (state.Store, error) {
	switch cfg.StateStore {
	case "memory":
		return state.NewMemoryStore(), nil
	case "redis":
		return state.NewRedisStore(state.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case "sqlite":
		return state.NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown state store %q", cfg.StateStore)
	}
}

// NewRuntime builds an actor runtime from configuration.
func NewRuntime(cfg config.Config, logger *zap.Logger) *runtime.Runtime {
	return runtime.NewRuntime(runtime.Options{
		MailboxSize: cfg.Runtime.MailboxSize,
	}, logger)
}

func reducerConfig(cfg config.ReducerConfig) history.ReducerConfig {
	return history.ReducerConfig{
		TargetCount:        cfg.TargetCount,
		ThresholdCount:     cfg.ThresholdCount,
		CountSystemMessage: cfg.CountSystemMessage,
	}
}
