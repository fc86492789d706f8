package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/deepseek-chatbot/internal/model/chat"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT",
		"DEEPSEEK_CONFIG",
		"LLM_PROVIDER",
		"DEEPSEEK_ENDPOINT",
		"DEEPSEEK_MODEL",
		"DEEPSEEK_MAX_TOKENS",
		"DEEPSEEK_STREAM",
		"DEEPSEEK_TIMEOUT",
		"DEEPSEEK_TEMPERATURE",
		"GITHUB_TOKEN",
		"AZURE_KEY",
		"ARK_API_KEY",
		"Model",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestResolveCredentialPrefersGitHubToken(t *testing.T) {
	got := ResolveCredential(mapLookup(map[string]string{
		"GITHUB_TOKEN": "gh-token",
		"AZURE_KEY":    "azure-key",
	}))
	if got.Reveal() != "gh-token" {
		t.Fatalf("expected GITHUB_TOKEN to win, got %q", got.Reveal())
	}
}

func TestResolveCredentialFallsBackToAzureKey(t *testing.T) {
	got := ResolveCredential(mapLookup(map[string]string{
		"GITHUB_TOKEN": "",
		"AZURE_KEY":    "azure-key",
	}))
	if got.Reveal() != "azure-key" {
		t.Fatalf("expected AZURE_KEY, got %q", got.Reveal())
	}
}

func TestResolveCredentialNone(t *testing.T) {
	got := ResolveCredential(mapLookup(map[string]string{"GITHUB_TOKEN": " ", "AZURE_KEY": ""}))
	if !got.Empty() {
		t.Fatalf("expected empty credential, got %q", got.Reveal())
	}
}

func TestResolveCredentialSkipsBlank(t *testing.T) {
	got := ResolveCredential(mapLookup(map[string]string{
		"GITHUB_TOKEN": "   ",
		"AZURE_KEY":    "azure-key",
	}))
	if got.Reveal() != "azure-key" {
		t.Fatalf("expected whitespace GITHUB_TOKEN to fall through to AZURE_KEY, got %q", got.Reveal())
	}
}

func TestCredentialFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("AZURE_KEY", "from-env")

	if got := CredentialFromEnv(ProviderAzure).Reveal(); got != "from-env" {
		t.Fatalf("expected from-env, got %q", got)
	}
}

func TestResolveCredentialForArkPrefersArkAPIKey(t *testing.T) {
	env := mapLookup(map[string]string{
		"ARK_API_KEY":  "ark-key",
		"GITHUB_TOKEN": "gh-token",
	})
	if got := ResolveCredentialFor(ProviderArk, env).Reveal(); got != "ark-key" {
		t.Fatalf("expected ARK_API_KEY for ark, got %q", got)
	}
	if got := ResolveCredentialFor(ProviderAzure, env).Reveal(); got != "gh-token" {
		t.Fatalf("expected ARK_API_KEY to be ignored for azure, got %q", got)
	}

	fallback := mapLookup(map[string]string{"ARK_API_KEY": " ", "AZURE_KEY": "azure-key"})
	if got := ResolveCredentialFor(ProviderArk, fallback).Reveal(); got != "azure-key" {
		t.Fatalf("expected fallback to AZURE_KEY, got %q", got)
	}
}

func TestNewChatModelArk(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("LLM_PROVIDER", "ark")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if _, err := cfg.AI.NewChatModel(context.Background(), Credential("ark-key")); err == nil {
		t.Fatal("expected error without a model id")
	}

	cfg.AI.ArkModel = "ep-test"
	if _, err := cfg.AI.NewChatModel(context.Background(), ""); !errors.Is(err, chat.ErrAuth) {
		t.Fatalf("expected ErrAuth without credential, got %v", err)
	}
	if _, err := cfg.AI.NewChatModel(context.Background(), Credential("ark-key")); err != nil {
		t.Fatalf("unexpected error with credential: %v", err)
	}
}

func TestCredentialIsRedactedWhenFormatted(t *testing.T) {
	c := Credential("super-secret")
	for _, out := range []string{
		fmt.Sprint(c),
		fmt.Sprintf("%v", c),
		fmt.Sprintf("%s", c),
		fmt.Sprintf("%#v", c),
	} {
		if out == "" || containsSecret(out) {
			t.Fatalf("credential leaked or empty in %q", out)
		}
	}
	text, _ := c.MarshalText()
	if containsSecret(string(text)) {
		t.Fatalf("credential leaked through MarshalText: %q", text)
	}
}

func containsSecret(s string) bool {
	return strings.Contains(s, "super-secret")
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderAzure {
		t.Errorf("Provider = %q, want %q", cfg.AI.Provider, ProviderAzure)
	}
	if cfg.AI.Endpoint != "https://models.inference.ai.azure.com" {
		t.Errorf("Endpoint = %q", cfg.AI.Endpoint)
	}
	if cfg.AI.Model != "DeepSeek-V3" {
		t.Errorf("Model = %q", cfg.AI.Model)
	}
	if cfg.AI.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", cfg.AI.MaxTokens, DefaultMaxTokens)
	}
	if !cfg.AI.StreamResponse {
		t.Error("StreamResponse should default to true")
	}
	if cfg.AI.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v", cfg.AI.Timeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("DEEPSEEK_MAX_TOKENS", "2048")
	t.Setenv("DEEPSEEK_STREAM", "false")
	t.Setenv("DEEPSEEK_MODEL", "DeepSeek-R1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.AI.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.StreamResponse {
		t.Error("StreamResponse should be false")
	}
	if cfg.AI.Model != "DeepSeek-R1" {
		t.Errorf("Model = %q", cfg.AI.Model)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DEEPSEEK_MAX_TOKENS": "zero",
		"DEEPSEEK_STREAM":     "maybe",
		"LLM_PROVIDER":        "openai",
		"PORT":                "80 80",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadNonPositiveMaxTokens(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEEPSEEK_MAX_TOKENS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero max tokens")
	}
}

func TestLoadConfigFileWithEnvPrecedence(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "deepseek.toml")
	content := `
[server]
addr = ":7000"

[ai]
model = "DeepSeek-V3-0324"
max_tokens = 500
stream = false
timeout_seconds = 30
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DEEPSEEK_CONFIG", path)
	t.Setenv("DEEPSEEK_MAX_TOKENS", "800")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.AI.Model != "DeepSeek-V3-0324" {
		t.Errorf("Model = %q", cfg.AI.Model)
	}
	if cfg.AI.MaxTokens != 800 {
		t.Errorf("env should override file max tokens, got %d", cfg.AI.MaxTokens)
	}
	if cfg.AI.StreamResponse {
		t.Error("file should disable streaming")
	}
	if cfg.AI.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.AI.Timeout)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEEPSEEK_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidMaxTokens(t *testing.T) {
	for n, want := range map[int]bool{99: false, 100: true, 1000: true, 4000: true, 4001: false} {
		if got := ValidMaxTokens(n); got != want {
			t.Errorf("ValidMaxTokens(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestNewChatModelAzureRequiresCredential(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if _, err := cfg.AI.NewChatModel(context.Background(), ""); err == nil {
		t.Fatal("expected error without credential")
	}
	if _, err := cfg.AI.NewChatModel(context.Background(), Credential("token")); err != nil {
		t.Fatalf("unexpected error with credential: %v", err)
	}
}
