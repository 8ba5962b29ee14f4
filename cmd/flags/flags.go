// Package flags holds the CLI flags and setup helpers shared by the gateway
// commands.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/sessionwallet/provisioning-backend/common"
	"github.com/sessionwallet/provisioning-backend/httpserver"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var ChainsConfigFlag = &cli.StringFlag{
	Name:     "chains-config",
	Required: true,
	Usage:    "JSON file describing the supported chains and their contract addresses",
}

var FunderKeyFlag = &cli.StringFlag{
	Name:     "funder-key",
	Required: true,
	EnvVars:  []string{"FUNDER_PRIVATE_KEY"},
	Usage:    "hex-encoded private key of the funder account, no 0x prefix",
}

var DirectoryAddrFlag = &cli.StringFlag{
	Name:  "directory-addr",
	Value: "http://127.0.0.1:8081",
	Usage: "base URL of the account directory service",
}

var SessionStoreFlag = &cli.StringFlag{
	Name:  "session-store",
	Value: "memory://",
	Usage: "session store URI: memory://, file://<dir> or redis://<host>:<port>",
}

var StoreSecretFlag = &cli.StringFlag{
	Name:    "store-secret",
	EnvVars: []string{"SESSION_STORE_SECRET"},
	Usage:   "secret used to seal file-backed session stores (required for file://)",
}

var RPIDFlag = &cli.StringFlag{
	Name:  "rp-id",
	Value: "localhost",
	Usage: "WebAuthn relying party identifier",
}

var RPOriginsFlag = &cli.StringSliceFlag{
	Name:  "rp-origin",
	Value: cli.NewStringSlice("http://localhost:3000"),
	Usage: "allowed WebAuthn origins, repeatable",
}

var RPDisplayNameFlag = &cli.StringFlag{
	Name:  "rp-display-name",
	Value: "Session Wallet",
	Usage: "WebAuthn relying party display name",
}

var FundingAmountFlag = &cli.StringFlag{
	Name:  "funding-amount",
	Value: "1",
	Usage: "native-currency amount, in whole units, sent to each new account",
}

var SessionHoursFlag = &cli.Int64Flag{
	Name:  "session-hours",
	Value: 24,
	Usage: "validity of the initial session authorization in hours",
}

var SpendLimitFlag = &cli.StringSliceFlag{
	Name:  "spend-limit",
	Usage: "initial session spend limit as <token-address>=<amount>, repeatable",
}

var EventsRedisFlag = &cli.StringFlag{
	Name:  "events-redis",
	Usage: "redis URL for publishing account events; in-process when empty",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
