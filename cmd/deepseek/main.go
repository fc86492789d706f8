package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/deepseek-chatbot/internal/cli"
	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
	"github.com/zhouzirui/deepseek-chatbot/internal/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file; the warning only shows with --verbose.
	var notices []string
	if err := godotenv.Load(); err != nil {
		notices = append(notices,
			fmt.Sprintf("warning: failed to load .env file: %v", err),
			"continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	app := cli.NewApp(cli.Factory(chat.AIFactory(cfg.AI)), conversation.Options{
		Stream:    false,
		MaxTokens: cfg.AI.MaxTokens,
	})
	app.Provider = cfg.AI.Provider
	app.Notices = notices

	code := cli.Execute(ctx, cli.NewRootCommand(app, tui.Run))
	stop()
	os.Exit(code)
}
