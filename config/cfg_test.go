package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[mysql]
dsn = "user:pass@tcp(localhost:3306)/wc?parseTime=true"
table_prefix = "shop_"

[http]
port = "9000"
allowed_origins = ["https://admin.example.com"]

[report_cache]
addr = "localhost:6379"
ttl = "30s"

[reports]
default_interval = "day"
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "user:pass@tcp(localhost:3306)/wc?parseTime=true", cfg.DB.DSN)
	assert.Equal(t, "shop_", cfg.DB.TablePrefix)
	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "localhost:6379", cfg.ReportCache.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReportCache.TTL)
	assert.Equal(t, "day", cfg.Reports.DefaultInterval)
	assert.Equal(t, 10, cfg.Reports.DefaultPerPage)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("MYSQL_HOST", "db")
	t.Setenv("MYSQL_USER", "wc")
	t.Setenv("MYSQL_PASSWORD", "pw")
	t.Setenv("MYSQL_DATABASE", "shop")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.HTTP.Port)
	assert.Equal(t, "s3cret", cfg.HTTP.JWTSecret)
	assert.Equal(t, "wp_", cfg.DB.TablePrefix)
	assert.Equal(t, "wc:pw@tcp(db:3306)/shop?charset=utf8mb4&parseTime=true&loc=UTC", cfg.DB.DSN)
}
