package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/flagx"
	"github.com/dmitrijs2005/cardflow/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Durations use timex.Duration so both "15s" and integer nanoseconds are
// accepted. Zero values leave the current setting untouched.
type JsonConfig struct {
	HTTPAddr            string         `json:"http_addr"`
	GRPCAddr            string         `json:"grpc_addr"`
	DatabaseDSN         string         `json:"database_dsn"`
	RedisAddr           string         `json:"redis_addr"`
	RedisPassword       string         `json:"redis_password"`
	RedisDB             int            `json:"redis_db"`
	JWTSecret           string         `json:"jwt_secret"`
	JWTRefreshSecret    string         `json:"jwt_refresh_secret"`
	EncryptionKey       string         `json:"encryption_key"`
	SMTPHost            string         `json:"smtp_host"`
	SMTPPort            int            `json:"smtp_port"`
	SMTPUser            string         `json:"smtp_user"`
	SMTPPassword        string         `json:"smtp_password"`
	EmailFrom           string         `json:"email_from"`
	FrontendURL         string         `json:"frontend_url"`
	TrustedProxies      []string       `json:"trusted_proxies"`
	BcryptCost          int            `json:"bcrypt_cost"`
	LogLevel            string         `json:"log_level"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout"`
	HealthCheckInterval timex.Duration `json:"health_check_interval"`
}

// parseJson loads the file named by -c/-config, if any, into config.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrorConfiguration, path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", common.ErrorConfiguration, path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.JWTRefreshSecret, c.JWTRefreshSecret)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.EmailFrom, c.EmailFrom)
	setString(&config.FrontendURL, c.FrontendURL)
	if len(c.TrustedProxies) > 0 {
		config.TrustedProxies = c.TrustedProxies
	}
	setInt(&config.BcryptCost, c.BcryptCost)
	setString(&config.LogLevel, c.LogLevel)
	if c.ShutdownTimeout.Duration > 0 {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
	if c.HealthCheckInterval.Duration > 0 {
		config.HealthCheckInterval = c.HealthCheckInterval.Duration
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
