package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretProvider resolves a configuration key such as DB_PASSWORD to a value.
// An empty value with a nil error means the provider has nothing for the key.
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)

	// Name identifies the provider in log lines
	Name() string

	IsAvailable(ctx context.Context) bool
}

// ChainProvider asks each available provider in order and returns the first
// non-empty value.
type ChainProvider struct {
	providers []SecretProvider
}

func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error

	for _, provider := range c.providers {
		if !provider.IsAvailable(ctx) {
			continue
		}

		value, err := provider.GetSecret(ctx, key)
		if err == nil && value != "" {
			return value, nil
		}
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", provider.Name(), err)
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return "", fmt.Errorf("no available provider found for key: %s", key)
}

func (c *ChainProvider) Name() string {
	return "chain"
}

func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, provider := range c.providers {
		if provider.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// EnvProvider reads process environment variables
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

func (e *EnvProvider) Name() string {
	return "env"
}

func (e *EnvProvider) IsAvailable(ctx context.Context) bool {
	return true
}

// MapProvider serves values from a fixed map. Used for overrides and tests.
type MapProvider map[string]string

func (m MapProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func (m MapProvider) Name() string {
	return "map"
}

func (m MapProvider) IsAvailable(ctx context.Context) bool {
	return len(m) > 0
}

// FileProvider reads one secret per file from a mounted directory. Keys map
// to kebab-case file names, so DB_PASSWORD is read from <dir>/db-password.
type FileProvider struct {
	secretsPath string
}

func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{secretsPath: secretsPath}
}

func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if f.secretsPath == "" {
		return "", fmt.Errorf("secrets path not configured")
	}

	path := filepath.Join(f.secretsPath, secretFileName(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}

func (f *FileProvider) Name() string {
	return "file"
}

func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath == "" {
		return false
	}
	info, err := os.Stat(f.secretsPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func secretFileName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

const (
	serviceAccountDir    = "/var/run/secrets/kubernetes.io/serviceaccount"
	defaultK8sSecretsDir = "/var/secrets"
)

// K8sProvider reads secrets mounted into a pod. It reports itself available
// only when a service account token is present.
type K8sProvider struct {
	fileProvider *FileProvider
	namespace    string
	saDir        string
}

func NewK8sProvider(secretsPath, namespace string) *K8sProvider {
	if secretsPath == "" {
		secretsPath = defaultK8sSecretsDir
	}
	p := &K8sProvider{
		fileProvider: NewFileProvider(secretsPath),
		namespace:    namespace,
		saDir:        serviceAccountDir,
	}
	if p.namespace == "" {
		p.namespace = p.detectNamespace()
	}
	return p
}

func (k *K8sProvider) detectNamespace() string {
	ns, err := os.ReadFile(filepath.Join(k.saDir, "namespace"))
	if err != nil || strings.TrimSpace(string(ns)) == "" {
		return "default"
	}
	return strings.TrimSpace(string(ns))
}

func (k *K8sProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return k.fileProvider.GetSecret(ctx, key)
}

func (k *K8sProvider) Name() string {
	return "kubernetes"
}

func (k *K8sProvider) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(filepath.Join(k.saDir, "token")); err != nil {
		return false
	}
	return k.fileProvider.IsAvailable(ctx)
}

func (k *K8sProvider) GetNamespace() string {
	return k.namespace
}
