package flags

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"
	"github.com/ruteri/threshold-secret-registry/api/clients"
	"github.com/ruteri/threshold-secret-registry/common"
	"github.com/ruteri/threshold-secret-registry/cryptoutils"
	"github.com/ruteri/threshold-secret-registry/httpserver"
	"github.com/ruteri/threshold-secret-registry/interfaces"
	"github.com/ruteri/threshold-secret-registry/registry"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

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

// PrivateKey parses --private-key, or returns nil when it is unset.
func PrivateKey(cCtx *cli.Context) (*ecdsa.PrivateKey, error) {
	raw := cCtx.String(PrivateKeyFlag.Name)
	if raw == "" {
		return nil, nil
	}
	key, err := cryptoutils.PrivateKeyFromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}
	return key, nil
}

// Ledger is a registry binding together with its event log.
type Ledger interface {
	interfaces.SecretRegistry
	interfaces.EventSource
}

// OpenLedger connects to the ledger selected by --ledger. The returned
// binding signs with --private-key when it is set.
func OpenLedger(cCtx *cli.Context) (Ledger, error) {
	key, err := PrivateKey(cCtx)
	if err != nil {
		return nil, err
	}

	switch kind := cCtx.String(LedgerFlag.Name); kind {
	case "http":
		return clients.NewRegistryClient(cCtx.String(ServerAddrFlag.Name), key, cCtx.Duration(TimeoutFlag.Name))
	case "onchain":
		contract := cCtx.String(ContractFlag.Name)
		if !ethcommon.IsHexAddress(contract) {
			return nil, fmt.Errorf("invalid --%s %q", ContractFlag.Name, contract)
		}
		ethClient, err := ethclient.Dial(cCtx.String(RpcAddrFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to dial RPC: %w", err)
		}
		client, err := registry.NewOnchainRegistryClient(ethClient, ethClient, ethcommon.HexToAddress(contract))
		if err != nil {
			return nil, err
		}
		if key != nil {
			ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(TimeoutFlag.Name))
			defer cancel()
			chainID, err := ethClient.ChainID(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: could not get chain id: %v", interfaces.ErrLedgerUnavailable, err)
			}
			auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
			if err != nil {
				return nil, err
			}
			client.SetTransactOpts(auth)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("invalid --%s %q: must be http or onchain", LedgerFlag.Name, kind)
	}
}

var RpcAddrFlag = &cli.StringFlag{
	Name:  "rpc-addr",
	Value: "http://127.0.0.1:8545",
	Usage: "address to connect to RPC",
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "registry node to connect to (--ledger http)",
	EnvVars: []string{"REGISTRY_SERVER_ADDR"},
}

var LedgerFlag = &cli.StringFlag{
	Name:  "ledger",
	Value: "http",
	Usage: "registry binding: 'http' (registry node) or 'onchain' (SecretRegistry contract)",
}

var ContractFlag = &cli.StringFlag{
	Name:    "contract",
	Usage:   "SecretRegistry contract address (--ledger onchain)",
	EnvVars: []string{"REGISTRY_CONTRACT"},
}

var PrivateKeyFlag = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex secp256k1 signing key of the caller",
	EnvVars: []string{"REGISTRY_PRIVATE_KEY"},
}

var TimeoutFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "ledger request timeout",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:  "storage",
	Usage: "bundle storage backend URI (file://, s3://, ipfs://, vault://); may be repeated",
}

var LedgerFlags = []cli.Flag{
	LedgerFlag,
	ServerAddrFlag,
	RpcAddrFlag,
	ContractFlag,
	PrivateKeyFlag,
	TimeoutFlag,
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

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
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

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
