package config

import (
	"fmt"
	"os"
	"strings"
)

// CredentialEnvVars 按优先级排列的凭证环境变量，第一个非空值生效。
var CredentialEnvVars = []string{"GITHUB_TOKEN", "AZURE_KEY"}

// ArkCredentialEnvVar 为 Ark 提供方的 API Key，LLM_PROVIDER=ark 时优先于 CredentialEnvVars。
const ArkCredentialEnvVar = "ARK_API_KEY"

const redacted = "[REDACTED]"

// Credential is an opaque bearer token. Its formatted forms are redacted so
// it cannot leak into logs; use Reveal to obtain the raw value.
type Credential string

// Empty reports whether no token was supplied.
func (c Credential) Empty() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Reveal returns the raw token for the Authorization header.
func (c Credential) Reveal() string {
	return strings.TrimSpace(string(c))
}

func (c Credential) String() string {
	if c.Empty() {
		return ""
	}
	return redacted
}

func (c Credential) GoString() string {
	return fmt.Sprintf("config.Credential(%q)", c.String())
}

// MarshalText keeps the token out of JSON and TOML output.
func (c Credential) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ResolveCredential 依次检查 CredentialEnvVars，返回第一个非空值；都为空时返回空凭证。
func ResolveCredential(lookup func(string) (string, bool)) Credential {
	return resolve(lookup, CredentialEnvVars)
}

// ResolveCredentialFor 按模型提供方解析凭证：ark 先检查 ARK_API_KEY。
func ResolveCredentialFor(provider string, lookup func(string) (string, bool)) Credential {
	if provider == ProviderArk {
		return resolve(lookup, append([]string{ArkCredentialEnvVar}, CredentialEnvVars...))
	}
	return ResolveCredential(lookup)
}

func resolve(lookup func(string) (string, bool), keys []string) Credential {
	for _, key := range keys {
		if value, ok := lookup(key); ok {
			if value = strings.TrimSpace(value); value != "" {
				return Credential(value)
			}
		}
	}
	return ""
}

// CredentialFromEnv 从进程环境解析 provider 对应的凭证。
func CredentialFromEnv(provider string) Credential {
	return ResolveCredentialFor(provider, os.LookupEnv)
}
