package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	MongoDB  MongoDBConfig
	JWT      JWTConfig
	Ledger   LedgerConfig
	Jobs     JobsConfig
	Audit    AuditConfig
	LogLevel string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration. UseTransactions is
// the explicit capability flag for the deployment topology: true on a
// replica set, false on a standalone node where ledger operations degrade
// to best-effort sequential writes.
type MongoDBConfig struct {
	URI             string
	Database        string
	UseTransactions bool
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// LedgerConfig holds ledger operation tuning
type LedgerConfig struct {
	// DefaultLifetimeDays is the lot lifetime used when no active
	// expiration rules record exists.
	DefaultLifetimeDays    int
	ExpiringSoonWindowDays int
	ExpiryBatchSize        int
	OperationTimeout       time.Duration
	MaxRetries             int
	RetryBackoff           time.Duration
}

// JobsConfig holds scheduled-job cadence
type JobsConfig struct {
	ExpirySweepInterval time.Duration
	DowngradeDayOfMonth int
	DowngradeCheckEvery time.Duration
}

// AuditConfig holds the audit queue sizing
type AuditConfig struct {
	QueueSize int
	Workers   int
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; environment variables still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "4000")
	viper.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "loyalty")
	viper.SetDefault("MongoDB.UseTransactions", true)
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // seconds
	viper.SetDefault("Ledger.DefaultLifetimeDays", 365)
	viper.SetDefault("Ledger.ExpiringSoonWindowDays", 30)
	viper.SetDefault("Ledger.ExpiryBatchSize", 500)
	viper.SetDefault("Ledger.OperationTimeout", 10*time.Second)
	viper.SetDefault("Ledger.MaxRetries", 3)
	viper.SetDefault("Ledger.RetryBackoff", 50*time.Millisecond)
	viper.SetDefault("Jobs.ExpirySweepInterval", 24*time.Hour)
	viper.SetDefault("Jobs.DowngradeDayOfMonth", 1)
	viper.SetDefault("Jobs.DowngradeCheckEvery", time.Hour)
	viper.SetDefault("Audit.QueueSize", 1024)
	viper.SetDefault("Audit.Workers", 2)
	viper.SetDefault("LogLevel", "info")
}
