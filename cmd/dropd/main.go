package main

import (
	"flag"
	"math/big"
	"os"
	"strings"

	"dropchain/config"
	"dropchain/core"
	"dropchain/core/state"
	"dropchain/crypto"
	"dropchain/native/oracle"
	"dropchain/observability"
	"dropchain/observability/logging"
	"dropchain/rpc"
	"dropchain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("dropd", "").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("dropd", cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	owner, err := cfg.PlatformOwnerAddress()
	if err != nil {
		logger.Error("invalid platform owner", "error", err)
		os.Exit(1)
	}
	oracleKey, err := cfg.OracleKey()
	if err != nil {
		logger.Error("invalid oracle key", "error", err)
		os.Exit(1)
	}
	verifier, err := oracle.NewVerifier(oracleKey)
	if err != nil {
		logger.Error("failed to construct oracle verifier", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(state.NewManager(db), verifier, core.Config{
		Name:          cfg.Name,
		Symbol:        cfg.Symbol,
		PlatformOwner: owner,
		PlatformFee:   cfg.PlatformFeeBps,
		HeartbeatMs:   cfg.HeartbeatMillis,
	}, observability.NewLogEmitter(logger))

	if len(cfg.Genesis) > 0 {
		allocs := make(map[[20]byte]*big.Int, len(cfg.Genesis))
		for _, alloc := range cfg.Genesis {
			addr, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address))
			if err != nil {
				logger.Error("invalid genesis address", "error", err)
				os.Exit(1)
			}
			balance, ok := new(big.Int).SetString(strings.TrimSpace(alloc.Balance), 10)
			if !ok {
				logger.Error("invalid genesis balance", "address", alloc.Address)
				os.Exit(1)
			}
			var key [20]byte
			copy(key[:], addr.Bytes())
			allocs[key] = balance
		}
		if err := node.ApplyGenesis(allocs); err != nil {
			logger.Error("failed to apply genesis allocation", "error", err)
			os.Exit(1)
		}
	}

	server := rpc.NewServer(node)
	logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress, "name", cfg.Name, "symbol", cfg.Symbol)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
