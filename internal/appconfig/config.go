// Package appconfig binds environment variables (with defaults) into a
// typed Config via viper, and loads the static reference data files
// (cluster endpoint list, band table, mode sub-ranges, prefix table)
// the rest of the pipeline needs at startup.
package appconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is every environment-derived setting the supervisor needs to
// construct the pipeline. Static reference data (clusters, bands,
// modes, prefixes) is loaded separately via the Load* functions in
// data.go, using the paths named here.
type Config struct {
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDBName   string
	PostgresRetentionDays int

	ValkeyHost           string
	ValkeyPort           int
	ValkeyDB             int
	ValkeySpotExpiration time.Duration
	ValkeyGeoExpiration  time.Duration

	QrzUser           string
	QrzPassword       string
	QrzAPIKey         string
	QrzSessionRefresh time.Duration

	TelnetUsername string

	LogLevel     string
	HTTPAddr     string
	ClustersFile string
	PrefixesFile string
	BandsFile    string
	ModesFile    string
}

// PostgresDSN assembles a libpq-style connection string for pgxpool.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDBName)
}

// ValkeyAddr assembles the host:port pair for the redis/go-redis client.
func (c Config) ValkeyAddr() string {
	return fmt.Sprintf("%s:%d", c.ValkeyHost, c.ValkeyPort)
}

// Load binds the environment into a Config, applying the documented
// defaults. The telnet cluster username is the one required setting
// with no default; a missing value is a fail-fast configuration error.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("POSTGRES_USER", "holycluster")
	v.SetDefault("POSTGRES_PASSWORD", "")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_DB_NAME", "holycluster")
	v.SetDefault("POSTGRES_DB_RETENTION_DAYS", 14)

	v.SetDefault("VALKEY_HOST", "localhost")
	v.SetDefault("VALKEY_PORT", 6379)
	v.SetDefault("VALKEY_DB", 0)
	v.SetDefault("VALKEY_SPOT_EXPIRATION", 60)
	v.SetDefault("VALKEY_GEO_EXPIRATION", 3600)

	v.SetDefault("QRZ_USER", "")
	v.SetDefault("QRZ_PASSWORD", "")
	v.SetDefault("QRZ_API_KEY", "")
	v.SetDefault("QRZ_SESSION_KEY_REFRESH", 1800)

	v.SetDefault("USERNAME_FOR_TELNET_CLUSTERS", "")

	v.SetDefault("HOLYCLUSTER_LOG_LEVEL", "info")
	v.SetDefault("HOLYCLUSTER_HTTP_ADDR", ":8080")
	v.SetDefault("HOLYCLUSTER_CLUSTERS_FILE", "data/clusters.csv")
	v.SetDefault("HOLYCLUSTER_PREFIXES_FILE", "data/prefixes.csv")
	v.SetDefault("HOLYCLUSTER_BANDS_FILE", "data/bands.csv")
	v.SetDefault("HOLYCLUSTER_MODES_FILE", "data/modes.yaml")

	cfg := Config{
		PostgresUser:          v.GetString("POSTGRES_USER"),
		PostgresPassword:      v.GetString("POSTGRES_PASSWORD"),
		PostgresHost:          v.GetString("POSTGRES_HOST"),
		PostgresPort:          v.GetInt("POSTGRES_PORT"),
		PostgresDBName:        v.GetString("POSTGRES_DB_NAME"),
		PostgresRetentionDays: v.GetInt("POSTGRES_DB_RETENTION_DAYS"),

		ValkeyHost:           v.GetString("VALKEY_HOST"),
		ValkeyPort:           v.GetInt("VALKEY_PORT"),
		ValkeyDB:             v.GetInt("VALKEY_DB"),
		ValkeySpotExpiration: time.Duration(v.GetInt64("VALKEY_SPOT_EXPIRATION")) * time.Second,
		ValkeyGeoExpiration:  time.Duration(v.GetInt64("VALKEY_GEO_EXPIRATION")) * time.Second,

		QrzUser:           v.GetString("QRZ_USER"),
		QrzPassword:       v.GetString("QRZ_PASSWORD"),
		QrzAPIKey:         v.GetString("QRZ_API_KEY"),
		QrzSessionRefresh: time.Duration(v.GetInt64("QRZ_SESSION_KEY_REFRESH")) * time.Second,

		TelnetUsername: v.GetString("USERNAME_FOR_TELNET_CLUSTERS"),

		LogLevel:     v.GetString("HOLYCLUSTER_LOG_LEVEL"),
		HTTPAddr:     v.GetString("HOLYCLUSTER_HTTP_ADDR"),
		ClustersFile: v.GetString("HOLYCLUSTER_CLUSTERS_FILE"),
		PrefixesFile: v.GetString("HOLYCLUSTER_PREFIXES_FILE"),
		BandsFile:    v.GetString("HOLYCLUSTER_BANDS_FILE"),
		ModesFile:    v.GetString("HOLYCLUSTER_MODES_FILE"),
	}

	if cfg.TelnetUsername == "" {
		return Config{}, fmt.Errorf("appconfig: USERNAME_FOR_TELNET_CLUSTERS is required")
	}
	return cfg, nil
}
