// The gateway command serves the account provisioning API: passkey-backed
// registration and login, smart account deployment and funding, and the local
// session endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/sessionwallet/provisioning-backend/chains"
	"github.com/sessionwallet/provisioning-backend/cmd/flags"
	"github.com/sessionwallet/provisioning-backend/deployer"
	"github.com/sessionwallet/provisioning-backend/directory"
	"github.com/sessionwallet/provisioning-backend/events"
	"github.com/sessionwallet/provisioning-backend/funder"
	"github.com/sessionwallet/provisioning-backend/httpserver"
	"github.com/sessionwallet/provisioning-backend/interfaces"
	"github.com/sessionwallet/provisioning-backend/passkey"
	"github.com/sessionwallet/provisioning-backend/provisioner"
	"github.com/sessionwallet/provisioning-backend/sessionkey"
	"github.com/sessionwallet/provisioning-backend/sessionstore"
)

func main() {
	app := &cli.App{
		Name:  "gateway",
		Usage: "Serve the passkey account provisioning API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.ChainsConfigFlag,
			flags.FunderKeyFlag,
			flags.DirectoryAddrFlag,
			flags.SessionStoreFlag,
			flags.StoreSecretFlag,
			flags.RPIDFlag,
			flags.RPOriginsFlag,
			flags.RPDisplayNameFlag,
			flags.FundingAmountFlag,
			flags.SessionHoursFlag,
			flags.SpendLimitFlag,
			flags.EventsRedisFlag,
		}, flags.CommonFlags...),
		Action: runGateway,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runGateway(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := context.Background()

	registry, err := chains.LoadRegistry(cCtx.String(flags.ChainsConfigFlag.Name))
	if err != nil {
		logger.Error("Failed to load chain configuration", "err", err)
		return err
	}

	funderKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cCtx.String(flags.FunderKeyFlag.Name), "0x"))
	if err != nil {
		logger.Error("Invalid funder key", "err", err)
		return fmt.Errorf("invalid funder key: %w", err)
	}

	fundingAmount, err := decimal.NewFromString(cCtx.String(flags.FundingAmountFlag.Name))
	if err != nil {
		logger.Error("Invalid funding amount", "err", err)
		return fmt.Errorf("invalid funding amount: %w", err)
	}

	spendLimits, err := parseSpendLimits(cCtx.StringSlice(flags.SpendLimitFlag.Name))
	if err != nil {
		logger.Error("Invalid spend limit", "err", err)
		return err
	}

	clients := chains.NewClientFactory(registry, funderKey, logger)
	defer clients.Close()

	storeFactory := sessionstore.NewFactory(logger, []byte(cCtx.String(flags.StoreSecretFlag.Name)))
	store, err := storeFactory.StoreFor(ctx, cCtx.String(flags.SessionStoreFlag.Name))
	if err != nil {
		logger.Error("Failed to create session store", "err", err)
		return err
	}

	relay := passkey.NewRelayAuthenticator()
	credentials, err := passkey.NewWebAuthnProvider(passkey.Config{
		RPDisplayName: cCtx.String(flags.RPDisplayNameFlag.Name),
		RPID:          cCtx.String(flags.RPIDFlag.Name),
		RPOrigins:     cCtx.StringSlice(flags.RPOriginsFlag.Name),
	}, relay, logger)
	if err != nil {
		logger.Error("Failed to create credential provider", "err", err)
		return err
	}

	accountDeployer, err := deployer.New(clients, logger)
	if err != nil {
		logger.Error("Failed to create deployer", "err", err)
		return err
	}

	publisher, err := setupPublisher(cCtx, logger)
	if err != nil {
		logger.Error("Failed to create event publisher", "err", err)
		return err
	}

	orchestrator := provisioner.New(
		registry,
		&directory.Client{ServerAddr: cCtx.String(flags.DirectoryAddrFlag.Name)},
		credentials,
		sessionkey.Generator{},
		accountDeployer,
		funder.New(clients, logger),
		store,
		publisher,
		provisioner.Config{
			SessionDuration: time.Duration(cCtx.Int64(flags.SessionHoursFlag.Name)) * time.Hour,
			SpendLimits:     spendLimits,
			FundingAmount:   fundingAmount,
		},
		logger,
	)

	handler := httpserver.NewHandler(orchestrator, relay, logger)
	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name)), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit
	logger.Info("Shutting down")

	server.Shutdown()
	return nil
}

// parseSpendLimits turns repeated <token-address>=<amount> flags into the
// spend-limit policy for new sessions.
func parseSpendLimits(entries []string) (interfaces.SpendLimits, error) {
	limits := make(interfaces.SpendLimits, len(entries))
	for _, entry := range entries {
		token, amount, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("spend limit %q is not <token-address>=<amount>", entry)
		}
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("spend limit token %q is not an address", token)
		}
		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("spend limit amount %q: %w", amount, err)
		}
		limits[common.HexToAddress(token)] = value
	}
	return limits, nil
}

func setupPublisher(cCtx *cli.Context, logger *slog.Logger) (events.Publisher, error) {
	redisURL := cCtx.String(flags.EventsRedisFlag.Name)
	if redisURL == "" {
		return events.NewWatermillPublisher(events.NewInProcessPublisher(logger)), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid events redis URL: %w", err)
	}
	wmPublisher, err := events.NewRedisPublisher(redis.NewClient(opts), logger)
	if err != nil {
		return nil, err
	}
	return events.NewWatermillPublisher(wmPublisher), nil
}
