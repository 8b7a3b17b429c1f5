package config

import (
	"flag"
	"fmt"

	"github.com/dmitrijs2005/cardflow/internal/common"
	"github.com/dmitrijs2005/cardflow/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3001")
//	-g string   gRPC health bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-s string   JWT access secret
//	-t string   JWT refresh secret
//	-k string   encryption key (64 hex chars)
//	-f string   frontend base URL
//	-l string   log level (debug, info, warn, error)
//
// Only the flags listed above are parsed; everything else in args is
// filtered out with flagx.FilterArgs so other components can own their flags.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-g", "-d", "-r", "-s", "-t", "-k", "-f", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port to run the gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT access secret")
	fs.StringVar(&config.JWTRefreshSecret, "t", config.JWTRefreshSecret, "JWT refresh secret")
	fs.StringVar(&config.EncryptionKey, "k", config.EncryptionKey, "encryption key (hex)")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorConfiguration, err)
	}
	return nil
}
