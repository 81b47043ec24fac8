package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gvalidator "github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. WEB3CLIENT_NODE_URI.
const EnvPrefix = "WEB3CLIENT"

// ErrValidationFailed heads the joined error returned by Load when a field
// breaks its constraints.
var ErrValidationFailed = errors.New("config validation failed")

type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	if value.Tag == "!!int" {
		var v int64
		if err := value.Decode(&v); err != nil {
			return err
		}
		d.Duration = time.Duration(v) * time.Millisecond
		return nil
	}
	dur, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = dur
	return nil
}

type Config struct {
	Network string `yaml:"network"`
	ChainID uint64 `yaml:"chain_id"`
	ABIDir  string `yaml:"abi_dir"`

	Node struct {
		URI            string   `yaml:"uri"`
		WSURI          string   `yaml:"ws_uri"`
		RequestTimeout Duration `yaml:"request_timeout"`
		HTTPRetryMax   int      `yaml:"http_retry_max" validate:"gte=0"`
		RetryWaitMin   Duration `yaml:"retry_wait_min"`
		RetryWaitMax   Duration `yaml:"retry_wait_max"`
		UserAgent      string   `yaml:"user_agent"`
	} `yaml:"node"`

	Tx struct {
		// Type is detected from the node when unset.
		Type               *int     `yaml:"type" validate:"omitempty,oneof=0 1 2"`
		MaxPriorityFeeGwei float64  `yaml:"max_priority_fee_gwei" validate:"gte=0"`
		MaxFeeCeilingGwei  float64  `yaml:"max_fee_ceiling_gwei" validate:"gte=0"`
		GasLimitMultiplier float64  `yaml:"gas_limit_multiplier" validate:"gte=0"`
		NonceManager       string   `yaml:"nonce_manager" validate:"oneof=node memory redis"`
		PollInterval       Duration `yaml:"poll_interval"`
		PollTimeout        Duration `yaml:"poll_timeout"`
	} `yaml:"tx"`

	Signer struct {
		PrivateKey    string `yaml:"-"`
		Address       string `yaml:"address" validate:"omitempty,eth_addr"`
		KeystoreDir   string `yaml:"keystore_dir"`
		PassphraseEnv string `yaml:"passphrase_env"`
	} `yaml:"signer"`

	RPCLog struct {
		Enabled bool `yaml:"enabled"`
		// Allow nil logs every method, an empty list logs none.
		Allow        *[]string `yaml:"allow"`
		DecodeTx     *bool     `yaml:"decode_tx"`
		FetchTx      bool      `yaml:"fetch_tx"`
		FetchReceipt bool      `yaml:"fetch_receipt"`
		Metrics      bool      `yaml:"metrics"`
		// MaxEntries bounds the in-memory log served at /rpc-log.
		MaxEntries int `yaml:"max_entries" validate:"gte=0"`
	} `yaml:"rpc_log"`

	Subscribe struct {
		WSTimeout         Duration `yaml:"ws_timeout"`
		ReconnectDelay    Duration `yaml:"reconnect_delay"`
		MaxReconnectDelay Duration `yaml:"max_reconnect_delay"`
		PollInterval      Duration `yaml:"poll_interval"`
		PollTimeout       Duration `yaml:"poll_timeout"`
	} `yaml:"subscribe"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	API struct {
		Listen    string `yaml:"listen"`
		AuthToken string `yaml:"auth_token"`
	} `yaml:"api"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=json console"`
	} `yaml:"log"`
}

// envOverrides are read from WEB3CLIENT_* variables and win over the file.
type envOverrides struct {
	NodeURI      string `envconfig:"NODE_URI"`
	WSURI        string `envconfig:"WS_URI"`
	Network      string `envconfig:"NETWORK"`
	ChainID      uint64 `envconfig:"CHAIN_ID"`
	PrivateKey   string `envconfig:"PRIVATE_KEY"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	APIAuthToken string `envconfig:"API_AUTH_TOKEN"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
}

// Load reads path (skipped when empty), applies environment overrides and
// defaults, then validates.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.NodeURI != "" {
		c.Node.URI = env.NodeURI
	}
	if env.WSURI != "" {
		c.Node.WSURI = env.WSURI
	}
	if env.Network != "" {
		c.Network = env.Network
	}
	if env.ChainID != 0 {
		c.ChainID = env.ChainID
	}
	if env.PrivateKey != "" {
		c.Signer.PrivateKey = env.PrivateKey
	}
	if env.RedisAddr != "" {
		c.Redis.Addr = env.RedisAddr
	}
	if env.APIAuthToken != "" {
		c.API.AuthToken = env.APIAuthToken
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Node.RequestTimeout.Duration == 0 {
		c.Node.RequestTimeout = Duration{Duration: 15 * time.Second}
	}
	if c.Node.HTTPRetryMax == 0 {
		c.Node.HTTPRetryMax = 2
	}
	if c.Node.RetryWaitMin.Duration == 0 {
		c.Node.RetryWaitMin = Duration{Duration: 500 * time.Millisecond}
	}
	if c.Node.RetryWaitMax.Duration == 0 {
		c.Node.RetryWaitMax = Duration{Duration: 5 * time.Second}
	}
	if c.Node.UserAgent == "" {
		c.Node.UserAgent = "web3client"
	}
	if c.Tx.MaxPriorityFeeGwei == 0 {
		c.Tx.MaxPriorityFeeGwei = 0.01
	}
	if c.Tx.NonceManager == "" {
		c.Tx.NonceManager = "node"
	}
	if c.Tx.PollInterval.Duration == 0 {
		c.Tx.PollInterval = Duration{Duration: time.Second}
	}
	if c.Tx.PollTimeout.Duration == 0 {
		c.Tx.PollTimeout = Duration{Duration: 10 * time.Second}
	}
	if c.Signer.PassphraseEnv == "" {
		c.Signer.PassphraseEnv = EnvPrefix + "_KEYSTORE_PASSPHRASE"
	}
	if c.RPCLog.DecodeTx == nil {
		decode := true
		c.RPCLog.DecodeTx = &decode
	}
	if c.RPCLog.MaxEntries == 0 {
		c.RPCLog.MaxEntries = 1000
	}
	if c.Subscribe.PollInterval.Duration == 0 {
		c.Subscribe.PollInterval = c.Tx.PollInterval
	}
	if c.Subscribe.PollTimeout.Duration == 0 {
		c.Subscribe.PollTimeout = c.Tx.PollTimeout
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "web3client:nonce:"
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

var validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	errs := []error{}
	if err := validate.Struct(c); err != nil {
		var fieldErrs gvalidator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, fmt.Errorf("%s: value %v fails %q", fe.Namespace(), fe.Value(), fe.Tag()))
		}
	}
	if c.Network == "" && c.Node.URI == "" {
		errs = append(errs, errors.New("node.uri is required when no network is set"))
	}
	if c.Node.RetryWaitMax.Duration < c.Node.RetryWaitMin.Duration {
		errs = append(errs, errors.New("node.retry_wait_max must not be below node.retry_wait_min"))
	}
	if c.Tx.NonceManager == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis nonce manager"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrValidationFailed}, errs...)...)
}

// TxType returns the configured transaction type, or nil to detect it.
func (c *Config) TxType() *int {
	return c.Tx.Type
}

// SubscribeURI prefers node.ws_uri and falls back to node.uri.
func (c *Config) SubscribeURI() string {
	if strings.TrimSpace(c.Node.WSURI) != "" {
		return c.Node.WSURI
	}
	return c.Node.URI
}

// Passphrase reads the keystore passphrase from the configured variable.
func (c *Config) Passphrase() string {
	return os.Getenv(c.Signer.PassphraseEnv)
}
