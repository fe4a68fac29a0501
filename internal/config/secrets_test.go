package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("TEST_SECRET", "test-value")

	provider := NewEnvProvider()

	value, err := provider.GetSecret(ctx, "TEST_SECRET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "test-value" {
		t.Errorf("expected 'test-value', got '%s'", value)
	}

	value, err = provider.GetSecret(ctx, "LAB_QUERY_NON_EXISTENT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty string, got '%s'", value)
	}

	if !provider.IsAvailable(ctx) {
		t.Error("env provider should always be available")
	}
	if provider.Name() != "env" {
		t.Errorf("expected name 'env', got '%s'", provider.Name())
	}
}

func TestMapProvider(t *testing.T) {
	ctx := context.Background()

	if (MapProvider{}).IsAvailable(ctx) {
		t.Error("empty map provider should not be available")
	}

	provider := MapProvider{"DB_HOST": "db"}
	if !provider.IsAvailable(ctx) {
		t.Error("populated map provider should be available")
	}
	value, _ := provider.GetSecret(ctx, "DB_HOST")
	if value != "db" {
		t.Errorf("expected 'db', got '%s'", value)
	}
}

func TestFileProvider(t *testing.T) {
	ctx := context.Background()
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "db-password"), []byte("s3cret\n"), 0600); err != nil {
		t.Fatalf("failed to create test secret file: %v", err)
	}

	provider := NewFileProvider(tmpDir)

	t.Run("maps key to kebab-case file and trims", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "DB_PASSWORD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "s3cret" {
			t.Errorf("expected 's3cret', got '%s'", value)
		}
	})

	t.Run("missing file is empty", func(t *testing.T) {
		value, err := provider.GetSecret(ctx, "JWT_SECRET")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "" {
			t.Errorf("expected empty string, got '%s'", value)
		}
	})

	t.Run("availability", func(t *testing.T) {
		if !provider.IsAvailable(ctx) {
			t.Error("file provider should be available when directory exists")
		}
		if NewFileProvider("/non/existent/path").IsAvailable(ctx) {
			t.Error("file provider should not be available for non-existent directory")
		}
		if NewFileProvider("").IsAvailable(ctx) {
			t.Error("file provider should not be available with empty path")
		}
		if NewFileProvider(filepath.Join(tmpDir, "db-password")).IsAvailable(ctx) {
			t.Error("file provider should not be available when path is a file")
		}
	})

	t.Run("empty path errors", func(t *testing.T) {
		if _, err := NewFileProvider("").GetSecret(ctx, "ANY_KEY"); err == nil {
			t.Error("expected error when secrets path is empty")
		}
	})
}

func TestChainProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("ENV_SECRET", "from-env")

	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "file-secret"), []byte("from-file"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	chain := NewChainProvider(MapProvider{"MAP_SECRET": "from-map"}, NewFileProvider(tmpDir), NewEnvProvider())

	tests := []struct {
		key  string
		want string
	}{
		{"MAP_SECRET", "from-map"},
		{"FILE_SECRET", "from-file"},
		{"ENV_SECRET", "from-env"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			value, err := chain.GetSecret(ctx, tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, value)
			}
		})
	}

	t.Run("errors when nothing is available", func(t *testing.T) {
		empty := NewChainProvider(NewFileProvider("/non/existent"))
		if _, err := empty.GetSecret(ctx, "ANY_KEY"); err == nil {
			t.Error("expected error when all providers fail")
		}
		if empty.IsAvailable(ctx) {
			t.Error("chain should not be available when no providers are available")
		}
	})

	if chain.Name() != "chain" {
		t.Errorf("expected name 'chain', got '%s'", chain.Name())
	}
}

func TestK8sProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("reads mounted secrets", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, "jwt-secret"), []byte("k8s-jwt-secret-32-chars-minimum!\n"), 0600); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		provider := NewK8sProvider(tmpDir, "labs")
		value, err := provider.GetSecret(ctx, "JWT_SECRET")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if value != "k8s-jwt-secret-32-chars-minimum!" {
			t.Errorf("unexpected secret '%s'", value)
		}
		if provider.GetNamespace() != "labs" {
			t.Errorf("expected namespace 'labs', got '%s'", provider.GetNamespace())
		}
	})

	t.Run("service account controls availability and namespace", func(t *testing.T) {
		saDir := t.TempDir()
		secretsDir := t.TempDir()

		provider := NewK8sProvider(secretsDir, "")
		provider.saDir = saDir
		if provider.IsAvailable(ctx) {
			t.Error("provider should not be available without a service account token")
		}

		if err := os.WriteFile(filepath.Join(saDir, "token"), []byte("fake-token"), 0600); err != nil {
			t.Fatalf("failed to create token: %v", err)
		}
		if err := os.WriteFile(filepath.Join(saDir, "namespace"), []byte("lab-query\n"), 0600); err != nil {
			t.Fatalf("failed to create namespace: %v", err)
		}
		if !provider.IsAvailable(ctx) {
			t.Error("provider should be available with a token and a secrets directory")
		}
		if ns := provider.detectNamespace(); ns != "lab-query" {
			t.Errorf("expected namespace 'lab-query', got '%s'", ns)
		}
	})

	t.Run("missing secrets directory", func(t *testing.T) {
		if NewK8sProvider("/non/existent/path", "x").IsAvailable(ctx) {
			t.Error("provider should not be available when secrets directory doesn't exist")
		}
	})

	if NewK8sProvider("", "x").Name() != "kubernetes" {
		t.Error("expected name 'kubernetes'")
	}
}
