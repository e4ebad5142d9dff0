package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idprivacy/errs"
	"idprivacy/merkle"
	"idprivacy/store"
	"idprivacy/submission"
)

var envKeys = []string{
	"RPC_URL", "BUNDLER_URL", "ENTRY_POINT", "CHAIN_ID", "PRIVATE_KEY", "TREE_LEVELS", "CACHE_SIZE",
	"POLL_ATTEMPTS", "POLL_DELAY", "VALID_UNTIL", "VALID_AFTER", "STORE_DRIVER", "STORE_PATH",
	"MYSQL_DSN", "MONGO_URI",
}

func clearEnv(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("PRIVATE_KEY", "0xabc")

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", s.BundlerURL)
	assert.Equal(t, DefaultEntryPoint, s.EntryPoint)
	assert.Nil(t, s.ChainID)
	assert.Equal(t, "abc", s.PrivateKey)
	assert.Equal(t, merkle.DefaultLevels, s.TreeLevels)
	assert.Equal(t, 20, s.Poll.MaxAttempts)
	assert.Equal(t, 3*time.Second, s.Poll.Delay)
	assert.Equal(t, submission.MockWindow, s.Window)
	assert.Equal(t, StoreFile, s.StoreDriver)
	assert.Equal(t, ":8080", s.ListenAddr)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://node")
	t.Setenv("BUNDLER_URL", "http://bundler")
	t.Setenv("ENTRY_POINT", "0x00000000000000000000000000000000000000ee")
	t.Setenv("CHAIN_ID", "80002")
	t.Setenv("POLL_ATTEMPTS", "5")
	t.Setenv("POLL_DELAY", "250ms")
	t.Setenv("VALID_UNTIL", "0x10")
	t.Setenv("STORE_DRIVER", "MEMORY")

	s, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://bundler", s.BundlerURL)
	assert.Equal(t, common.HexToAddress("0xee"), s.EntryPoint)
	assert.Equal(t, int64(80002), s.ChainID.Int64())
	assert.Equal(t, 5, s.Poll.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, s.Poll.Delay)
	assert.Equal(t, uint64(16), s.Window.ValidUntil)
	assert.Equal(t, StoreMemory, s.StoreDriver)
}

func TestFromEnvRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad entry":      {"RPC_URL": "x", "ENTRY_POINT": "nope"},
		"bad chain":      {"RPC_URL": "x", "CHAIN_ID": "-1"},
		"bad attempts":   {"RPC_URL": "x", "POLL_ATTEMPTS": "0"},
		"bad delay":      {"RPC_URL": "x", "POLL_DELAY": "soon"},
		"wide window":    {"RPC_URL": "x", "VALID_UNTIL": "0x1000000000000"},
		"bad driver":     {"RPC_URL": "x", "STORE_DRIVER": "redis"},
		"mysql sans dsn": {"RPC_URL": "x", "STORE_DRIVER": "mysql"},
		"mongo sans uri": {"RPC_URL": "x", "STORE_DRIVER": "mongo"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.True(t, errs.Is(err, errs.Validation), "%v", err)
		})
	}
}

func TestRequireChain(t *testing.T) {
	clearEnv(t)
	s, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, errs.Is(s.RequireChain(), errs.Validation))

	t.Setenv("RPC_URL", "http://node")
	s, err = FromEnv()
	require.NoError(t, err)
	assert.NoError(t, s.RequireChain())
}

func TestLoadEnvToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("IDPRIVACY_TEST_VALUE=loaded\n"), 0o600))
	t.Setenv("IDPRIVACY_TEST_VALUE", "")
	os.Unsetenv("IDPRIVACY_TEST_VALUE")

	LoadEnv(filepath.Join(dir, "missing.env"), path)
	assert.Equal(t, "loaded", GetEnv("IDPRIVACY_TEST_VALUE"))
	assert.Equal(t, "fallback", GetEnvDefault("IDPRIVACY_TEST_UNSET", "fallback"))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	kv, closeFn, err := OpenStore(ctx, Settings{StoreDriver: StoreMemory})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &store.Memory{}, kv)

	path := filepath.Join(t.TempDir(), "store.json")
	kv, closeFn, err = OpenStore(ctx, Settings{StoreDriver: StoreFile, StorePath: path})
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, kv.Set(ctx, "k", []byte(`true`)))
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, _, err = OpenStore(ctx, Settings{StoreDriver: "redis"})
	assert.Error(t, err)
}
