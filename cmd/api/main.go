package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/deepseek-chatbot/internal/config"
	"github.com/zhouzirui/deepseek-chatbot/internal/handler"
	"github.com/zhouzirui/deepseek-chatbot/internal/model/preset"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/chat"
	"github.com/zhouzirui/deepseek-chatbot/internal/service/conversation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	presetStore := preset.NewMemoryStore(preset.Seed())
	chatService := chat.NewService(chat.AIFactory(cfg.AI), presetStore, conversation.Options{
		Stream:    cfg.AI.StreamResponse,
		MaxTokens: cfg.AI.MaxTokens,
	})

	fallback := config.CredentialFromEnv(cfg.AI.Provider)
	if fallback.Empty() {
		log.Println("未在环境变量中找到 GITHUB_TOKEN / AZURE_KEY，客户端需在创建会话时提供 token")
	} else {
		log.Printf("server credential loaded: %s", fallback)
	}
	log.Printf("model provider=%s model=%s stream=%t max_tokens=%d", cfg.AI.Provider, cfg.AI.Model, cfg.AI.StreamResponse, cfg.AI.MaxTokens)

	router := handler.NewRouter(presetStore, chatService, fallback)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("DeepSeek chat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
