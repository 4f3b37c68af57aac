package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmwaters/agora"
	"github.com/cmwaters/agora/consensus"
	"github.com/cmwaters/agora/ledger"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/joho/godotenv"
)

// Config is read from the environment (optionally a .env file) and then
// overridden by command line flags
type Config struct {
	Moniker    string
	ListenAddr string
	Peers      []string
	DataDir    string
	Namespace  string
	KeySeed    string
	LogLevel   string
	Supply     int64
	Observer   bool
	Parameters consensus.Parameters
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// LoadConfig reads AGORA_* variables. A .env file in the working directory is
// loaded first if present.
func LoadConfig() Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	params := consensus.DefaultParameters()
	params.CommitteeSize = getenvInt("AGORA_COMMITTEE_SIZE", params.CommitteeSize)
	params.BlockSize = getenvInt("AGORA_BLOCK_SIZE", params.BlockSize)
	params.MaxSteps = getenvInt("AGORA_MAX_STEPS", params.MaxSteps)
	params.ProposalTimeout = getenvDuration("AGORA_PROPOSAL_TIMEOUT", params.ProposalTimeout)
	params.VoteTimeout = getenvDuration("AGORA_VOTE_TIMEOUT", params.VoteTimeout)
	params.ResolveTimeout = getenvDuration("AGORA_RESOLVE_TIMEOUT", params.ResolveTimeout)
	if f, err := strconv.ParseFloat(os.Getenv("AGORA_QUORUM_FRACTION"), 64); err == nil {
		params.QuorumFraction = f
	}

	var peers []string
	if v := strings.TrimSpace(os.Getenv("AGORA_PEERS")); v != "" {
		peers = strings.Split(v, ",")
	}

	return Config{
		Moniker:    getenv("AGORA_MONIKER", petname.Generate(2, "-")),
		ListenAddr: getenv("AGORA_LISTEN_ADDR", "/ip4/0.0.0.0/tcp/0"),
		Peers:      peers,
		DataDir:    os.Getenv("AGORA_DATA_DIR"),
		Namespace:  getenv("AGORA_NAMESPACE", agora.DefaultNamespace),
		KeySeed:    os.Getenv("AGORA_KEY_SEED"),
		LogLevel:   getenv("AGORA_LOG_LEVEL", "info"),
		Supply:     int64(getenvInt("AGORA_CURRENCY_SUPPLY", int(ledger.DefaultCurrencySupply))),
		Observer:   getenvBool("AGORA_OBSERVER", false),
		Parameters: params,
	}
}

// DebugString renders the config without secrets
func (c Config) DebugString() string {
	return fmt.Sprintf("moniker=%s listen=%s peers=%d data_dir=%q namespace=%s committee=%d block_size=%d observer=%t",
		c.Moniker, c.ListenAddr, len(c.Peers), c.DataDir, c.Namespace, c.Parameters.CommitteeSize, c.Parameters.BlockSize, c.Observer)
}
