package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", `
telegram:
  token: "abc"
  admin_ids: [1, 2]
storage:
  driver: sqlite
  path: ./data.db
broadcast:
  batch_pause: 2s
`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "abc", cfg.Telegram.Token)
	require.Equal(t, []int64{1, 2}, cfg.Telegram.AdminIDs)
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "2s", cfg.Broadcast.BatchPause)
	require.Same(t, cfg, m.Get())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	_, err := m.Parse()
	require.Error(t, err)
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"x"}}{}`)
	m := NewConfigManager(p)
	m.SetEnv(noEnv)
	_, err := m.Parse()
	require.Error(t, err)
}

func TestEnvOnlyConfig(t *testing.T) {
	env := map[string]string{EnvToken: "tok", EnvAdminIDs: "10, 20,,30"}
	m := NewConfigManager("")
	m.SetEnv(func(k string) string { return env[k] })
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "tok", cfg.Telegram.Token)
	require.Equal(t, []int64{10, 20, 30}, cfg.Telegram.AdminIDs)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"file","admin_ids":[1]}}`)
	m := NewConfigManager(p)
	m.SetEnv(func(k string) string {
		if k == EnvToken {
			return "env"
		}
		return ""
	})
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "env", cfg.Telegram.Token)
	require.Equal(t, []int64{1}, cfg.Telegram.AdminIDs)
}

func TestInvalidAdminIDs(t *testing.T) {
	_, err := ParseIDList("1,abc")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.Error(t, Validate(&Config{}))

	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	require.NoError(t, Validate(cfg))

	cfg.Storage.Driver = "postgres"
	require.Error(t, Validate(cfg))

	cfg.Storage.Driver = "bolt"
	cfg.Broadcast.BatchPause = "soon"
	require.Error(t, Validate(cfg))
}

func TestDurationHelpers(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 1500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 1500*time.Millisecond, d)

	d, err = ParseDurationOrDefault("x", "3s", time.Second)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, d)

	d, err = ParseDurationOrDefault("x", "0s", time.Second)
	require.NoError(t, err)
	require.Equal(t, time.Second, d)

	_, err = ParseDurationField("broadcast.batch_pause", "-1s")
	var de *DurationError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "broadcast.batch_pause", de.Path)
	require.ErrorIs(t, err, errNegativeDuration)

	_, err = ParseDurationOrDefault("notifier.spacing", "fast", time.Second)
	require.ErrorAs(t, err, &de)
	require.Equal(t, "fast", de.Raw)
}

func TestValidateReportsEveryBadDuration(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Storage.Driver = "memory"
	cfg.Telegram.PollTimeout = "x"
	cfg.Notifier.Spacing = "-2s"

	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "telegram.poll_timeout")
	require.Contains(t, err.Error(), "notifier.spacing")
	require.NotContains(t, err.Error(), "broadcast.batch_pause")
}

func TestPublishKeepsNewest(t *testing.T) {
	m := NewConfigManager("")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	require.Same(t, b, <-ch)
	m.Unsubscribe(ch)
	_, ok := <-ch
	require.False(t, ok)
}
