package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"leadbridge/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watcherConfig = `{
	"gateway": {"base_url": "http://waha.local:3000", "api_key": "key"},
	"auth": {"webhook_secret": "secret123"},
	"rate_limit": {"window_sec": 60, "max_requests": 100},
	"log_level": "info"
}`

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}

func syncedLogger() (*logrus.Logger, func() string) {
	var mu sync.Mutex
	var out strings.Builder

	logger := logrus.New()
	logger.SetOutput(struct{ io.Writer }{writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return out.Write(p)
	})})

	return logger, func() string {
		mu.Lock()
		defer mu.Unlock()
		return out.String()
	}
}

func writeWatchedConfig(t *testing.T, content string) string {
	t.Helper()
	clearConfigEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))
	return configPath
}

func TestNewConfigWatcher(t *testing.T) {
	logger := logrus.New()
	configPath := "/path/to/config.json"

	watcher := NewConfigWatcher(configPath, logger)

	assert.NotNil(t, watcher)
	assert.Equal(t, configPath, watcher.configPath)
	assert.Equal(t, logger, watcher.logger)
	assert.Equal(t, defaultPollInterval, watcher.pollInterval)
	assert.Len(t, watcher.callbacks, 0)
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	watcher := NewConfigWatcher("/nonexistent/config.json", logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, watcher.Start(ctx))
}

func TestConfigWatcher_Start_ValidConfig(t *testing.T) {
	configPath := writeWatchedConfig(t, watcherConfig)
	watcher := NewConfigWatcher(configPath, logrus.New())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, watcher.Start(ctx))

	config := watcher.GetConfig()
	require.NotNil(t, config)
	assert.Equal(t, "http://waha.local:3000", config.Gateway.BaseURL)
	assert.Equal(t, 100, config.RateLimit.MaxRequests)
}

func TestConfigWatcher_Start_DetectsChange(t *testing.T) {
	configPath := writeWatchedConfig(t, watcherConfig)
	logger, _ := syncedLogger()
	watcher := NewConfigWatcher(configPath, logger)
	watcher.pollInterval = 20 * time.Millisecond

	changed := make(chan *models.Config, 1)
	watcher.OnConfigChange(func(c *models.Config) {
		changed <- c
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 10*time.Millisecond)

	updated := strings.Replace(watcherConfig, `"max_requests": 100`, `"max_requests": 5`, 1)
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0600))
	future := time.Now().Add(time.Second)
	require.NoError(t, os.Chtimes(configPath, future, future))

	select {
	case c := <-changed:
		assert.Equal(t, 5, c.RateLimit.MaxRequests)
	case <-time.After(2 * time.Second):
		t.Fatal("config change callback not invoked")
	}
}

func TestConfigWatcher_GetConfig(t *testing.T) {
	watcher := NewConfigWatcher("/path/to/config.json", logrus.New())

	assert.Nil(t, watcher.GetConfig())

	testConfig := &models.Config{Gateway: models.GatewayConfig{BaseURL: "https://test.com"}}
	watcher.mu.Lock()
	watcher.config = testConfig
	watcher.mu.Unlock()

	assert.Equal(t, testConfig, watcher.GetConfig())
}

func TestConfigWatcher_ReloadConfig_FileChanged(t *testing.T) {
	configPath := writeWatchedConfig(t, watcherConfig)
	logger, logs := syncedLogger()
	watcher := NewConfigWatcher(configPath, logger)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	watcher.config = config

	var mu sync.Mutex
	var newConfig *models.Config
	watcher.OnConfigChange(func(c *models.Config) {
		mu.Lock()
		defer mu.Unlock()
		newConfig = c
	})

	updated := strings.Replace(watcherConfig, `"log_level": "info"`, `"log_level": "warn"`, 1)
	require.NoError(t, os.WriteFile(configPath, []byte(updated), 0600))

	watcher.reloadConfig()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return newConfig != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "warn", newConfig.LogLevel)
	mu.Unlock()
	assert.Contains(t, logs(), "Configuration reloaded successfully")
	assert.Contains(t, logs(), "Log level changed")
}

func TestConfigWatcher_ReloadConfig_InvalidFile(t *testing.T) {
	configPath := writeWatchedConfig(t, watcherConfig)
	logger, logs := syncedLogger()
	watcher := NewConfigWatcher(configPath, logger)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	watcher.config = config

	require.NoError(t, os.WriteFile(configPath, []byte(`invalid json`), 0600))

	watcher.reloadConfig()

	assert.Contains(t, logs(), "Failed to reload configuration")
	assert.Equal(t, config, watcher.GetConfig())
}

func TestConfigWatcher_CallbackPanic(t *testing.T) {
	configPath := writeWatchedConfig(t, watcherConfig)
	logger, logs := syncedLogger()
	watcher := NewConfigWatcher(configPath, logger)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	watcher.config = config

	watcher.OnConfigChange(func(*models.Config) {
		panic("test panic")
	})

	watcher.reloadConfig()

	assert.Eventually(t, func() bool {
		return strings.Contains(logs(), "Config change callback panicked")
	}, time.Second, 5*time.Millisecond)
}

func TestConfigWatcher_LogConfigChanges(t *testing.T) {
	logger, logs := syncedLogger()
	watcher := NewConfigWatcher("/path/to/config.json", logger)

	oldConfig := &models.Config{
		RateLimit: models.RateLimitConfig{WindowSec: 60, MaxRequests: 100},
		LogLevel:  "info",
	}
	newConfig := &models.Config{
		RateLimit: models.RateLimitConfig{WindowSec: 30, MaxRequests: 100},
		LogLevel:  "info",
		Gateway:   models.GatewayConfig{BaseURL: "http://other:3000"},
	}

	watcher.logConfigChanges(oldConfig, newConfig)

	out := logs()
	assert.Contains(t, out, "Rate limit changed")
	assert.NotContains(t, out, "Log level changed")
	assert.Contains(t, out, "restart required")
}

func TestConfigWatcher_LogConfigChanges_NilOld(t *testing.T) {
	logger, logs := syncedLogger()
	watcher := NewConfigWatcher("/path/to/config.json", logger)

	watcher.logConfigChanges(nil, &models.Config{})

	assert.Empty(t, logs())
}
