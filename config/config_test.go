package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blndgs/peerreview"
	"github.com/blndgs/peerreview/account"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
rpc_url: https://api.stackup.sh/v1/node/key
paymaster_url: https://paymaster.example.com/rpc
private_key: `+testKey+`
chain_id: 11155111
account_salt: 3
account_proxy_code: "0x6080604052"
receipt_polling:
  delay: 500ms
  retries: 4
http:
  listen: 127.0.0.1:9000
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "https://api.stackup.sh/v1/node/key", cfg.RPCURL)
	require.Equal(t, "https://paymaster.example.com/rpc", cfg.PaymasterURL)
	// unset endpoints fall back to rpc_url
	require.Equal(t, cfg.RPCURL, cfg.BundlerURL)
	require.Equal(t, cfg.RPCURL, cfg.NodeURL)

	require.Equal(t, uint64(11155111), cfg.ChainID)
	require.Equal(t, int64(11155111), cfg.ChainIDBig().Int64())
	require.Equal(t, 500*time.Millisecond, cfg.ReceiptPolling.Delay)
	require.Equal(t, 4, cfg.ReceiptPolling.Retries)
	require.Equal(t, "127.0.0.1:9000", cfg.HTTP.Listen)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)

	// defaults survive
	require.Equal(t, peerreview.EntryPointV06, cfg.EntryPointAddress())
	require.Equal(t, DefaultContractAddress, cfg.Contract().Hex())
	require.Equal(t, DefaultExplorerURL, cfg.ExplorerURL)

	resolver := cfg.Resolver()
	require.Equal(t, account.DefaultFactory, resolver.Factory)
	require.Equal(t, int64(3), resolver.Salt.Int64())
	require.Equal(t, peerreview.EntryPointV06, resolver.EntryPoint)
	require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, resolver.ProxyCreationCode)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv(EnvPrivateKey, testKey)
	t.Setenv(EnvRPCURL, "http://localhost:8545")
	t.Setenv("PAYMASTER_KEY", "secret")

	path := writeConfig(t, `
rpc_url: https://ignored.example.com
paymaster_url: https://paymaster.example.com/${PAYMASTER_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, testKey, cfg.PrivateKey)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.Equal(t, "http://localhost:8545", cfg.BundlerURL)
	require.Equal(t, "https://paymaster.example.com/secret", cfg.PaymasterURL)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "rpc_url: [unterminated"))
	require.Error(t, err)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().ChainID, cfg.ChainID)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.RPCURL = "https://rpc.example.com"
		cfg.PrivateKey = testKey
		cfg.applyDefaults()
		return cfg
	}
	require.NoError(t, valid().Validate())

	noLinks := valid()
	noLinks.ExplorerURL = ""
	require.NoError(t, noLinks.Validate())

	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"rpc_url", func(c *Config) { c.RPCURL = "" }},
		{"rpc_url", func(c *Config) { c.RPCURL = "ftp://rpc.example.com" }},
		{"bundler_url", func(c *Config) { c.BundlerURL = "http://" }},
		{"paymaster_url", func(c *Config) { c.PaymasterURL = "not a url" }},
		{"private_key", func(c *Config) { c.PrivateKey = " " }},
		{"entry_point", func(c *Config) { c.EntryPoint = "0x1234" }},
		{"contract_address", func(c *Config) { c.ContractAddress = "" }},
		{"account_factory", func(c *Config) { c.AccountFactory = "factory" }},
		{"account_proxy_code", func(c *Config) { c.AccountProxyCode = "6080" }},
		{"chain_id", func(c *Config) { c.ChainID = 0 }},
		{"receipt_polling.delay", func(c *Config) { c.ReceiptPolling.Delay = 0 }},
		{"receipt_polling.retries", func(c *Config) { c.ReceiptPolling.Retries = -1 }},
		{"explorer_url", func(c *Config) { c.ExplorerURL = "basescan" }},
		{"log.level", func(c *Config) { c.Log.Level = "loud" }},
		{"log.format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, peerreview.ErrConfiguration)

			var cfgErr *peerreview.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
