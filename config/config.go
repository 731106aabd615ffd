// Package config loads the YAML configuration of the peer-review client.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/blndgs/peerreview"
	"github.com/blndgs/peerreview/account"
	"github.com/blndgs/peerreview/bundler"
)

// Environment variables that override the file.
const (
	EnvPrivateKey = "PEERREVIEW_PRIVATE_KEY"
	EnvRPCURL     = "PEERREVIEW_RPC_URL"
)

const (
	DefaultContractAddress = "0x29fAc56b5f34e29BC363cA18ACB33924f2Ce166c"
	DefaultChainID         = 84532 // Base Sepolia
	DefaultListen          = ":8080"
	DefaultExplorerURL     = "https://sepolia.basescan.org"
)

// Config holds every setting of the client.
type Config struct {
	RPCURL       string `yaml:"rpc_url"`
	BundlerURL   string `yaml:"bundler_url"`
	PaymasterURL string `yaml:"paymaster_url"`
	NodeURL      string `yaml:"node_url"`

	PrivateKey      string `yaml:"private_key"`
	EntryPoint      string `yaml:"entry_point"`
	ContractAddress string `yaml:"contract_address"`
	ChainID         uint64 `yaml:"chain_id"`

	AccountFactory        string `yaml:"account_factory"`
	AccountImplementation string `yaml:"account_implementation"`
	AccountSalt           uint64 `yaml:"account_salt"`
	// AccountProxyCode is the hex creation code of the proxy the factory
	// deploys. When set the account address is derived offline, otherwise
	// the EntryPoint is asked.
	AccountProxyCode string `yaml:"account_proxy_code"`

	// ExplorerURL links results to a block explorer. Empty disables links.
	ExplorerURL string `yaml:"explorer_url"`

	ReceiptPolling Polling `yaml:"receipt_polling"`
	HTTP           HTTP    `yaml:"http"`
	Log            Log     `yaml:"log"`
}

// Polling controls how the confirmation wait polls for receipts.
type Polling struct {
	Delay   time.Duration `yaml:"delay"`
	Retries int           `yaml:"retries"`
}

// HTTP configures the API server.
type HTTP struct {
	Listen string `yaml:"listen"`
}

// Log configures the global logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when the file omits a setting.
func Default() *Config {
	return &Config{
		EntryPoint:            peerreview.EntryPointV06.Hex(),
		ContractAddress:       DefaultContractAddress,
		ChainID:               DefaultChainID,
		AccountFactory:        account.DefaultFactory.Hex(),
		AccountImplementation: account.DefaultImplementation.Hex(),
		ExplorerURL:           DefaultExplorerURL,
		ReceiptPolling: Polling{
			Delay:   bundler.DefaultPollDelay,
			Retries: bundler.DefaultPollRetries,
		},
		HTTP: HTTP{Listen: DefaultListen},
		Log:  Log{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path, expanding ${VAR} references, and applies
// the environment overrides. An empty path loads the defaults only. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(EnvPrivateKey); ok && v != "" {
		c.PrivateKey = v
	}
	if v, ok := os.LookupEnv(EnvRPCURL); ok && v != "" {
		c.RPCURL = v
	}
}

// applyDefaults points every unset endpoint at the shared RPC URL.
func (c *Config) applyDefaults() {
	if c.BundlerURL == "" {
		c.BundlerURL = c.RPCURL
	}
	if c.PaymasterURL == "" {
		c.PaymasterURL = c.RPCURL
	}
	if c.NodeURL == "" {
		c.NodeURL = c.RPCURL
	}
}

// Validate checks every setting and reports the first bad one as a
// *peerreview.ConfigurationError.
func (c *Config) Validate() error {
	urls := []struct {
		field string
		value string
	}{
		{"rpc_url", c.RPCURL},
		{"bundler_url", c.BundlerURL},
		{"paymaster_url", c.PaymasterURL},
		{"node_url", c.NodeURL},
	}
	for _, u := range urls {
		if err := validateURL(u.value); err != nil {
			return &peerreview.ConfigurationError{Field: u.field, Err: err}
		}
	}

	if strings.TrimSpace(c.PrivateKey) == "" {
		return &peerreview.ConfigurationError{Field: "private_key", Err: errors.New("missing")}
	}

	addresses := []struct {
		field string
		value string
	}{
		{"entry_point", c.EntryPoint},
		{"contract_address", c.ContractAddress},
		{"account_factory", c.AccountFactory},
		{"account_implementation", c.AccountImplementation},
	}
	for _, a := range addresses {
		if !common.IsHexAddress(a.value) {
			return &peerreview.ConfigurationError{Field: a.field, Err: fmt.Errorf("invalid address %q", a.value)}
		}
	}

	if c.AccountProxyCode != "" {
		if _, err := hexutil.Decode(c.AccountProxyCode); err != nil {
			return &peerreview.ConfigurationError{Field: "account_proxy_code", Err: err}
		}
	}

	if c.ChainID == 0 {
		return &peerreview.ConfigurationError{Field: "chain_id", Err: errors.New("must be positive")}
	}

	if c.ReceiptPolling.Delay <= 0 {
		return &peerreview.ConfigurationError{Field: "receipt_polling.delay", Err: errors.New("must be positive")}
	}
	if c.ReceiptPolling.Retries <= 0 {
		return &peerreview.ConfigurationError{Field: "receipt_polling.retries", Err: errors.New("must be positive")}
	}

	if c.ExplorerURL != "" {
		if err := validateURL(c.ExplorerURL); err != nil {
			return &peerreview.ConfigurationError{Field: "explorer_url", Err: err}
		}
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return &peerreview.ConfigurationError{Field: "log.level", Err: err}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return &peerreview.ConfigurationError{Field: "log.format", Err: fmt.Errorf("unknown format %q", c.Log.Format)}
	}

	return nil
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("missing")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("missing host")
	}

	return nil
}

// EntryPointAddress returns the configured EntryPoint.
func (c *Config) EntryPointAddress() common.Address {
	return common.HexToAddress(c.EntryPoint)
}

// Contract returns the peer-review contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// ChainIDBig returns the chain ID as a big integer.
func (c *Config) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// Resolver returns the account resolver for the configured deployment.
// An invalid account_proxy_code is left empty; Validate reports it.
func (c *Config) Resolver() *account.Resolver {
	code, _ := hexutil.Decode(c.AccountProxyCode)
	return &account.Resolver{
		Factory:           common.HexToAddress(c.AccountFactory),
		Implementation:    common.HexToAddress(c.AccountImplementation),
		Salt:              new(big.Int).SetUint64(c.AccountSalt),
		EntryPoint:        c.EntryPointAddress(),
		ProxyCreationCode: code,
	}
}
