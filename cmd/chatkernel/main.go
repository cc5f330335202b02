// Command chatkernel is a small driver for the orchestration core.
//
// Usage:
//
//	chatkernel demo                        # run the built-in group chat demo
//	chatkernel demo --config config.yaml   # with a config file
//	chatkernel version                     # print version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/chatkernel/chatkernel"
	"github.com/chatkernel/chatkernel/config"
	"github.com/chatkernel/chatkernel/groupchat"
	"github.com/chatkernel/chatkernel/internal/telemetry"
	"github.com/chatkernel/chatkernel/types"
)

// Build-time injection via -ldflags.
var (
	Version   = chatkernel.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("chatkernel %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
	case "demo":
		if err := runDemo(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chatkernel <demo|version> [flags]")
}

func runDemo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := chatkernel.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	writer := &scriptedAgent{
		name: "writer",
		replies: []string{
			"Espresso: bold mornings, bottled.",
			"Wake up bold. Espresso in a heartbeat.",
		},
	}
	reviewer := &scriptedAgent{
		name: "reviewer",
		replies: []string{
			"Not approved: too wordy, tighten it.",
			"Approved.",
		},
	}

	chat, err := chatkernel.NewSequentialGroupChat(
		[]types.Agent{writer, reviewer},
		groupchat.NewApprovalTermination(logger, "reviewer"),
		cfg,
		logger,
	)
	if err != nil {
		return err
	}

	chat.AddChatMessage(types.NewUserMessage("Write a slogan for a home espresso machine."))
	msgCh, errCh := chat.InvokeStream(context.Background())
	for msg := range msgCh {
		fmt.Printf("%-10s %s\n", msg.Name+":", msg.Content)
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info("demo finished", zap.Int("transcript", len(chat.History())))
	return nil
}

// scriptedAgent replays canned replies, one per turn.
type scriptedAgent struct {
	name    string
	replies []string
	turn    int
}

func (a *scriptedAgent) ID() string          { return "agent-" + a.name }
func (a *scriptedAgent) Name() string        { return a.name }
func (a *scriptedAgent) Description() string { return "scripted demo agent" }

func (a *scriptedAgent) Invoke(_ context.Context, _ []types.Message) ([]types.Message, error) {
	i := a.turn
	if i >= len(a.replies) {
		i = len(a.replies) - 1
	}
	a.turn++
	return []types.Message{types.NewAssistantMessage(a.replies[i])}, nil
}
