package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	httpapi "github.com/jekabolt/grbpwr-analytics/internal/api/http"
	"github.com/jekabolt/grbpwr-analytics/internal/reportcache"
	"github.com/jekabolt/grbpwr-analytics/internal/reports"
	"github.com/jekabolt/grbpwr-analytics/internal/store"
	"github.com/jekabolt/grbpwr-analytics/log"
	"github.com/spf13/viper"
)

// Config represents the global configuration for the service.
type Config struct {
	DB          store.Config       `mapstructure:"mysql"`
	Logger      log.Config         `mapstructure:"logger"`
	HTTP        httpapi.Config     `mapstructure:"http"`
	ReportCache reportcache.Config `mapstructure:"report_cache"`
	Reports     reports.Config     `mapstructure:"reports"`
}

// LoadConfig loads the configuration from a file and/or environment variables.
// Environment variables take precedence over config file values.
// Nested keys use double underscore, e.g. MYSQL__DSN for mysql.dsn; the
// common keys are also bound to flat names such as MYSQL_DSN.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "__"))
	setDefaults(v)
	bindEnvVars(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/config/grbpwr-analytics")
		v.AddConfigPath("/etc/grbpwr-analytics")
		// config file is optional
		_ = v.ReadInConfig()
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %v", err)
	}

	if config.DB.DSN == "" {
		config.DB.DSN = dsnFromEnv()
	}
	return &config, nil
}

// dsnFromEnv builds a DSN from MYSQL_* variables or the managed database
// db.* variables. Both need host, user, password and database.
func dsnFromEnv() string {
	host, port := os.Getenv("MYSQL_HOST"), os.Getenv("MYSQL_PORT")
	user, password, database := os.Getenv("MYSQL_USER"), os.Getenv("MYSQL_PASSWORD"), os.Getenv("MYSQL_DATABASE")
	params := "charset=utf8mb4&parseTime=true&loc=UTC"

	if h := os.Getenv("db.HOSTNAME"); h != "" {
		host, port = h, os.Getenv("db.PORT")
		user, password, database = os.Getenv("db.USERNAME"), os.Getenv("db.PASSWORD"), os.Getenv("db.DATABASE")
		params += "&tls=custom"
	}

	if host == "" || user == "" || password == "" || database == "" {
		return ""
	}
	if port == "" {
		port = "3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", user, password, host, port, database, params)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8081")
	v.SetDefault("mysql.table_prefix", "wp_")
	v.SetDefault("report_cache.ttl", "5m")
	v.SetDefault("reports.default_interval", "week")
	v.SetDefault("reports.default_per_page", 10)
	v.SetDefault("reports.max_per_page", 100)
	v.SetDefault("reports.default_range_days", 7)
}

func bindEnvVars(v *viper.Viper) {
	// MySQL
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.automigrate", "MYSQL_AUTOMIGRATE")
	v.BindEnv("mysql.max_open_connections", "MYSQL_MAX_OPEN_CONNECTIONS")
	v.BindEnv("mysql.max_idle_connections", "MYSQL_MAX_IDLE_CONNECTIONS")
	v.BindEnv("mysql.tls_ca_path", "MYSQL_TLS_CA_PATH")
	v.BindEnv("mysql.table_prefix", "MYSQL_TABLE_PREFIX")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.add_source", "LOG_ADD_SOURCE")

	// HTTP
	v.BindEnv("http.port", "HTTP_PORT")
	v.BindEnv("http.address", "HTTP_ADDRESS")
	v.BindEnv("http.allowed_origins", "HTTP_ALLOWED_ORIGINS")
	v.BindEnv("http.jwt_secret", "HTTP_JWT_SECRET", "AUTH_JWT_SECRET")
	v.BindEnv("http.write_timeout", "HTTP_WRITE_TIMEOUT")
	v.BindEnv("http.rate_limit.window", "HTTP_RATE_LIMIT_WINDOW")
	v.BindEnv("http.rate_limit.max", "HTTP_RATE_LIMIT_MAX")

	// Report cache
	v.BindEnv("report_cache.addr", "REDIS_ADDR")
	v.BindEnv("report_cache.password", "REDIS_PASSWORD")
	v.BindEnv("report_cache.db", "REDIS_DB")
	v.BindEnv("report_cache.ttl", "REPORT_CACHE_TTL")
	v.BindEnv("report_cache.prefix", "REPORT_CACHE_PREFIX")

	// Reports
	v.BindEnv("reports.default_interval", "REPORTS_DEFAULT_INTERVAL")
	v.BindEnv("reports.default_per_page", "REPORTS_DEFAULT_PER_PAGE")
	v.BindEnv("reports.max_per_page", "REPORTS_MAX_PER_PAGE")
	v.BindEnv("reports.default_range_days", "REPORTS_DEFAULT_RANGE_DAYS")
}
