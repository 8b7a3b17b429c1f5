package config

import (
	"fmt"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/flagx"
)

// parseEnv overlays environment variables. Names follow the deployment
// manifests (DATABASE_URL, JWT_SECRET, ENCRYPTION_KEY, ...).
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	env := flagx.NewEnv(lookup)

	env.String("HTTP_ADDR", &config.HTTPAddr)
	env.String("GRPC_ADDR", &config.GRPCAddr)
	env.String("DATABASE_URL", &config.DatabaseDSN)
	env.String("REDIS_ADDR", &config.RedisAddr)
	env.String("REDIS_PASSWORD", &config.RedisPassword)
	env.Int("REDIS_DB", &config.RedisDB)
	env.String("JWT_SECRET", &config.JWTSecret)
	env.String("JWT_REFRESH_SECRET", &config.JWTRefreshSecret)
	env.String("ENCRYPTION_KEY", &config.EncryptionKey)
	env.String("SMTP_HOST", &config.SMTPHost)
	env.Int("SMTP_PORT", &config.SMTPPort)
	env.String("SMTP_USER", &config.SMTPUser)
	env.String("SMTP_PASSWORD", &config.SMTPPassword)
	env.String("EMAIL_FROM", &config.EmailFrom)
	env.String("FRONTEND_URL", &config.FrontendURL)
	env.List("TRUSTED_PROXIES", &config.TrustedProxies)
	env.Int("BCRYPT_COST", &config.BcryptCost)
	env.String("LOG_LEVEL", &config.LogLevel)
	env.Duration("SHUTDOWN_TIMEOUT", &config.ShutdownTimeout)
	env.Duration("HEALTH_CHECK_INTERVAL", &config.HealthCheckInterval)

	if env.Err != nil {
		return fmt.Errorf("%w: %v", common.ErrorConfiguration, env.Err)
	}
	return nil
}
