package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		args         []string
		expectedExit int
	}{
		{
			name:         "version with defaults",
			args:         []string{"version"},
			expectedExit: 0,
		},
		{
			name: "limiter status with config",
			config: `store:
  driver: memory
rate_limit:
  min_spacing: 10s
`,
			args:         []string{"limiter", "status"},
			expectedExit: 0,
		},
		{
			name:         "unknown command",
			args:         []string{"frobnicate"},
			expectedExit: 1,
		},
		{
			name: "invalid config",
			config: `rate_limit:
  min_spacing: [
`,
			args:         []string{"version"},
			expectedExit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("TALLY_STORE_DRIVER", "memory")
			t.Setenv("NO_COLOR", "1")

			args := tt.args
			if tt.config != "" {
				path := filepath.Join(tmpDir, "tally.yaml")
				if err := os.WriteFile(path, []byte(tt.config), 0o600); err != nil {
					t.Fatalf("failed to write config: %v", err)
				}
				args = append([]string{"--config", path}, args...)
			} else {
				args = append([]string{"--config", filepath.Join(tmpDir, "missing.yaml")}, args...)
			}

			assert.Equal(t, tt.expectedExit, run(args))
		})
	}
}

func TestRun_StoreInitError(t *testing.T) {
	tmpDir := t.TempDir()

	// A regular file where the store directory should be.
	storePath := filepath.Join(tmpDir, "store")
	if err := os.WriteFile(storePath, []byte("not a directory"), 0o600); err != nil {
		t.Fatalf("failed to create store file: %v", err)
	}
	t.Setenv("TALLY_STORE_DRIVER", "file")
	t.Setenv("TALLY_STORE_PATH", filepath.Join(storePath, "nested"))

	exitCode := run([]string{"--config", filepath.Join(tmpDir, "tally.yaml"), "version"})
	assert.Equal(t, 1, exitCode)
}
