package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Ledger     LedgerConfig     `json:"ledger"`
	BlobStore  BlobStoreConfig  `json:"blob_store"`
	Classifier ClassifierConfig `json:"classifier"`
	Wallet     WalletConfig     `json:"wallet"`
	Database   DatabaseConfig   `json:"database"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	BaseURL      string        `json:"base_url"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type LedgerConfig struct {
	NodeURL        string        `json:"node_url"`
	ModuleAddress  string        `json:"module_address"`
	ModuleName     string        `json:"module_name"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

type BlobStoreConfig struct {
	PinURL         string        `json:"pin_url"`
	GatewayURL     string        `json:"gateway_url"`
	APIKey         string        `json:"api_key"`
	SecretKey      string        `json:"secret_key"`
	MaxFileSize    int64         `json:"max_file_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

type ClassifierConfig struct {
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	MaxExcerpt int    `json:"max_excerpt"`
}

type WalletConfig struct {
	BridgeURL      string        `json:"bridge_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

type DatabaseConfig struct {
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

var (
	config     *Configuration
	configOnce sync.Once
	configLock sync.RWMutex
)

func LoadConfig(filePath string) (*Configuration, error) {
	var err error

	configOnce.Do(func() {
		var file *os.File
		file, err = os.Open(filePath)
		if err != nil {
			err = fmt.Errorf("failed to open config file: %w", err)
			return
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		config = &Configuration{}
		err = decoder.Decode(config)
		if err != nil {
			err = fmt.Errorf("failed to decode config file: %w", err)
			return
		}

		applyDefaults(config)
	})

	return config, err
}

func GetConfig() *Configuration {
	configLock.RLock()
	defer configLock.RUnlock()
	return config
}

func InitializeDefaultConfig() *Configuration {
	configLock.Lock()
	defer configLock.Unlock()

	config = &Configuration{}
	applyDefaults(config)

	return config
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:" + cfg.Server.Port
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Ledger.NodeURL == "" {
		cfg.Ledger.NodeURL = "https://fullnode.testnet.aptoslabs.com"
	}
	if cfg.Ledger.ModuleName == "" {
		cfg.Ledger.ModuleName = "docs_manager"
	}
	if cfg.Ledger.RequestTimeout == 0 {
		cfg.Ledger.RequestTimeout = 15 * time.Second
	}

	if cfg.BlobStore.PinURL == "" {
		cfg.BlobStore.PinURL = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	}
	if cfg.BlobStore.GatewayURL == "" {
		cfg.BlobStore.GatewayURL = "https://gateway.pinata.cloud"
	}
	if cfg.BlobStore.MaxFileSize == 0 {
		cfg.BlobStore.MaxFileSize = 25 << 20
	}
	if cfg.BlobStore.RequestTimeout == 0 {
		cfg.BlobStore.RequestTimeout = 60 * time.Second
	}

	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gemini-1.5-flash"
	}
	if cfg.Classifier.MaxExcerpt == 0 {
		cfg.Classifier.MaxExcerpt = 4000
	}

	if cfg.Wallet.RequestTimeout == 0 {
		cfg.Wallet.RequestTimeout = 60 * time.Second
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.Username == "" {
		cfg.Database.Username = "postgres"
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = "password"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "docs_manager"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 100
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 300
	}
}

// ApplyEnv overlays secrets and deployment endpoints from the environment.
// Values in the config file win only when the variable is unset.
func ApplyEnv(cfg *Configuration) {
	configLock.Lock()
	defer configLock.Unlock()

	overlay := map[string]*string{
		"PORT":                  &cfg.Server.Port,
		"BASE_URL":              &cfg.Server.BaseURL,
		"LEDGER_NODE_URL":       &cfg.Ledger.NodeURL,
		"MODULE_ADDRESS":        &cfg.Ledger.ModuleAddress,
		"MODULE_NAME":           &cfg.Ledger.ModuleName,
		"PINATA_API_KEY":        &cfg.BlobStore.APIKey,
		"PINATA_SECRET_API_KEY": &cfg.BlobStore.SecretKey,
		"GEMINI_API_KEY":        &cfg.Classifier.APIKey,
		"WALLET_BRIDGE_URL":     &cfg.Wallet.BridgeURL,
		"DATABASE_HOST":         &cfg.Database.Host,
		"DATABASE_PASSWORD":     &cfg.Database.Password,
	}
	for key, target := range overlay {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}
}

func LogConfig(logger *zap.Logger) {
	configLock.RLock()
	defer configLock.RUnlock()

	logger.Info("Application configuration",
		zap.String("port", config.Server.Port),
		zap.String("base_url", config.Server.BaseURL),
		zap.Duration("read_timeout", config.Server.ReadTimeout),
		zap.Duration("write_timeout", config.Server.WriteTimeout),
		zap.String("ledger_node", config.Ledger.NodeURL),
		zap.String("ledger_module", config.Ledger.ModuleAddress+"::"+config.Ledger.ModuleName),
		zap.String("gateway", config.BlobStore.GatewayURL),
		zap.Int64("max_file_size", config.BlobStore.MaxFileSize),
		zap.String("classifier_model", config.Classifier.Model),
		zap.Bool("classifier_enabled", config.Classifier.APIKey != ""),
		zap.String("wallet_bridge", config.Wallet.BridgeURL),
		zap.String("database_host", config.Database.Host),
		zap.String("database_name", config.Database.Name),
	)
}
