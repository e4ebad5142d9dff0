// Package config loads the service settings from the environment and opens
// the optional persistent stores.
package config

import (
	"context"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"idprivacy/errs"
	"idprivacy/merkle"
	"idprivacy/poll"
	"idprivacy/submission"
	"idprivacy/userop"
)

// DefaultEntryPoint is the canonical v0.7 entry point deployment.
var DefaultEntryPoint = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreMySQL  = "mysql"
	StoreMongo  = "mongo"
)

// Settings is everything the service needs to reach its collaborators. It
// is built once and passed explicitly.
type Settings struct {
	RPCURL     string
	BundlerURL string
	// ChainID overrides the node's chain id when non-nil.
	ChainID    *big.Int
	EntryPoint common.Address
	// PrivateKey signs registrations, deployments and sponsor approvals.
	PrivateKey string

	CircuitsPath     string
	SnarkjsBin       string
	TreeLevels       int
	UserDataArtifact string

	StoreDriver     string
	StorePath       string
	MySQLDSN        string
	MySQLTable      string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	ListenAddr string
	CacheSize  int
	Poll       poll.Policy
	Window     userop.Window
}

// LoadEnv loads .env files into the environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Warn("Could not load env file", "file", f, "err", err)
		}
	}
}

// GetEnv returns the value of key, trimmed.
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetEnvDefault returns the value of key or def when unset or empty.
func GetEnvDefault(key, def string) string {
	if v := GetEnv(key); v != "" {
		return v
	}
	return def
}

// FromEnv builds Settings from the environment and validates the values
// that are set. Commands that talk to a node also call RequireChain.
func FromEnv() (Settings, error) {
	const op = "config.FromEnv"
	s := Settings{
		RPCURL:           GetEnv("RPC_URL"),
		PrivateKey:       strings.TrimPrefix(GetEnv("PRIVATE_KEY"), "0x"),
		CircuitsPath:     GetEnvDefault("CIRCUITS_PATH", "build/circuits"),
		SnarkjsBin:       GetEnvDefault("SNARKJS_BIN", "snarkjs"),
		UserDataArtifact: GetEnv("USERDATA_ARTIFACT"),
		StoreDriver:      strings.ToLower(GetEnvDefault("STORE_DRIVER", StoreFile)),
		StorePath:        GetEnvDefault("STORE_PATH", "data/store.json"),
		MySQLDSN:         GetEnv("MYSQL_DSN"),
		MySQLTable:       GetEnvDefault("MYSQL_TABLE", "kv"),
		MongoURI:         GetEnv("MONGO_URI"),
		MongoDatabase:    GetEnvDefault("MONGO_DATABASE", "idprivacy"),
		MongoCollection:  GetEnvDefault("MONGO_COLLECTION", "kv"),
		ListenAddr:       GetEnvDefault("LISTEN_ADDR", ":8080"),
		Window:           submission.MockWindow,
	}
	s.BundlerURL = GetEnvDefault("BUNDLER_URL", s.RPCURL)

	s.EntryPoint = DefaultEntryPoint
	if v := GetEnv("ENTRY_POINT"); v != "" {
		if !common.IsHexAddress(v) {
			return s, errs.Ef(errs.Validation, op, "ENTRY_POINT %q is not an address", v)
		}
		s.EntryPoint = common.HexToAddress(v)
	}
	if v := GetEnv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 0)
		if !ok || id.Sign() <= 0 {
			return s, errs.Ef(errs.Validation, op, "CHAIN_ID %q is not a positive integer", v)
		}
		s.ChainID = id
	}

	var err error
	if s.TreeLevels, err = intEnv("TREE_LEVELS", merkle.DefaultLevels); err != nil {
		return s, err
	}
	if s.CacheSize, err = intEnv("CACHE_SIZE", 1024); err != nil {
		return s, err
	}
	if s.Poll.MaxAttempts, err = intEnv("POLL_ATTEMPTS", poll.DefaultMaxAttempts); err != nil {
		return s, err
	}
	s.Poll.Delay = poll.DefaultDelay
	if v := GetEnv("POLL_DELAY"); v != "" {
		if s.Poll.Delay, err = time.ParseDuration(v); err != nil {
			return s, errs.E(errs.Validation, op, err)
		}
	}
	if s.Window.ValidUntil, err = uintEnv("VALID_UNTIL", s.Window.ValidUntil); err != nil {
		return s, err
	}
	if s.Window.ValidAfter, err = uintEnv("VALID_AFTER", s.Window.ValidAfter); err != nil {
		return s, err
	}

	switch s.StoreDriver {
	case StoreMemory, StoreFile:
	case StoreMySQL:
		if s.MySQLDSN == "" {
			return s, errs.Ef(errs.Validation, op, "MYSQL_DSN is required for the mysql store")
		}
	case StoreMongo:
		if s.MongoURI == "" {
			return s, errs.Ef(errs.Validation, op, "MONGO_URI is required for the mongo store")
		}
	default:
		return s, errs.Ef(errs.Validation, op, "unknown STORE_DRIVER %q", s.StoreDriver)
	}
	return s, nil
}

// RequireChain checks the settings needed to reach a node and a bundler.
func (s Settings) RequireChain() error {
	if s.RPCURL == "" {
		return errs.Ef(errs.Validation, "config.RequireChain", "RPC_URL is required")
	}
	if s.BundlerURL == "" {
		return errs.Ef(errs.Validation, "config.RequireChain", "BUNDLER_URL is required")
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	v := GetEnv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errs.Ef(errs.Validation, "config.FromEnv", "%s %q is not a positive integer", key, v)
	}
	return n, nil
}

func uintEnv(key string, def uint64) (uint64, error) {
	v := GetEnv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 48)
	if err != nil {
		return 0, errs.Ef(errs.Validation, "config.FromEnv", "%s %q is not a uint48", key, v)
	}
	return n, nil
}

// GetMongoClient connects to uri and pings the server.
func GetMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}
