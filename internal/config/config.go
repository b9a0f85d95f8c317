package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	APIPort  int `yaml:"apiPort"`
	Database struct {
		Driver     string `yaml:"driver"` // sqlite3 or postgres
		Path       string `yaml:"path"`   // sqlite file path
		DSN        string `yaml:"dsn"`    // postgres connection string
		WALMode    bool   `yaml:"walMode"`
		MaxRetries int    `yaml:"maxRetries"`
		RetryDelay int    `yaml:"retryDelay"`
	} `yaml:"database"`
	Domains struct {
		App    string `yaml:"app"`
		Secure bool   `yaml:"secure"`
	} `yaml:"domains"`
	Secrets struct {
		UsageSecret string `yaml:"usageSecret"` // signs the view-counter cookie
		TokenSecret string `yaml:"tokenSecret"` // signs API JWTs
	} `yaml:"secrets"`
	Quota struct {
		AnonymousViews int `yaml:"anonymousViews"`
		FreeViews      int `yaml:"freeViews"`
	} `yaml:"quota"`
	Stripe struct {
		SecretKey         string `yaml:"secretKey"`
		WebhookSecret     string `yaml:"webhookSecret"`
		PriceIDProMonthly string `yaml:"priceIdProMonthly"`
		SuccessURL        string `yaml:"successUrl"`
		CancelURL         string `yaml:"cancelUrl"`
	} `yaml:"stripe"`
	Providers struct {
		FinnhubURL string `yaml:"finnhubUrl"`
		FinnhubKey string `yaml:"finnhubKey"`
		FMPURL     string `yaml:"fmpUrl"`
		FMPKey     string `yaml:"fmpKey"`
	} `yaml:"providers"`
	Archive struct {
		Enabled         bool   `yaml:"enabled"`
		Endpoint        string `yaml:"endpoint"`
		Region          string `yaml:"region"`
		Bucket          string `yaml:"bucket"`
		AccessKeyID     string `yaml:"accessKeyId"`
		SecretAccessKey string `yaml:"secretAccessKey"`
	} `yaml:"archive"`
	Admin struct {
		Token string `yaml:"token"`
	} `yaml:"admin"`
}

// LoadConfig loads the configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, err
		}
		log.Printf("Warning: Could not read config file: %s. Using defaults or environment variables.", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8081
		log.Println("APIPort not specified, using default 8081")
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/data/tickerval.db"
		log.Println("Database path not specified, using default /data/tickerval.db")
	}
	if !v.IsSet("database.walMode") {
		cfg.Database.WALMode = true
	}
	if cfg.Database.MaxRetries == 0 {
		cfg.Database.MaxRetries = 5
	}
	if cfg.Database.RetryDelay == 0 {
		cfg.Database.RetryDelay = 5
	}

	if cfg.Domains.App == "" {
		cfg.Domains.App = "app.tickerval.io"
		log.Println("App domain not specified, using default app.tickerval.io")
	}
	if !v.IsSet("domains.secure") {
		env := os.Getenv("TICKERVAL_ENV")
		cfg.Domains.Secure = env == "prod"
		log.Printf("Domain security not specified, defaulting to %v based on environment", cfg.Domains.Secure)
	}

	// Metered tiers: 2 report views per month for anonymous visitors,
	// 5 for signed-in accounts without an active subscription.
	if cfg.Quota.AnonymousViews == 0 {
		cfg.Quota.AnonymousViews = 2
	}
	if cfg.Quota.FreeViews == 0 {
		cfg.Quota.FreeViews = 5
	}

	if cfg.Providers.FinnhubURL == "" {
		cfg.Providers.FinnhubURL = "https://finnhub.io/api/v1"
	}
	if cfg.Providers.FMPURL == "" {
		cfg.Providers.FMPURL = "https://financialmodelingprep.com/api/v3"
	}

	if cfg.Secrets.UsageSecret == "" {
		cfg.Secrets.UsageSecret = os.Getenv("TICKERVAL_USAGE_SECRET")
	}
	if cfg.Secrets.TokenSecret == "" {
		cfg.Secrets.TokenSecret = os.Getenv("TICKERVAL_TOKEN_SECRET")
	}

	return &cfg, nil
}
