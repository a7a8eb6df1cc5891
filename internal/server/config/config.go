// Package config handles configuration for the gophvault server:
// defaults, a JSON overlay, environment variables and command-line flags,
// applied in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	StorageBackendLocal = "local"
	StorageBackendS3    = "s3"

	// DedupScopeGlobal rejects content already stored by any user.
	DedupScopeGlobal = "global"
	// DedupScopeOwner rejects content only when the same owner already stored it.
	DedupScopeOwner = "owner"
)

// Config holds runtime settings for the gophvault server.
//
// Fields:
//   - HTTPAddr / GRPCHealthAddr: bind addresses; an empty GRPCHealthAddr disables the probe.
//   - DatabaseDSN: PostgreSQL DSN (pgx). When empty it is assembled from the DB* fields.
//   - SecretKey / TokenAlgorithm: HMAC secret and JWT signing method (HS256, HS384, HS512).
//   - AccessTokenValidityDuration: bearer token lifetime.
//   - UploadDir / MaxUploadSizeMB: local blob root and per-file size ceiling.
//   - StorageBackend: "local" or "s3". DedupScope: "global" or "owner".
//   - PendingFileTTL: age after which an unfinished upload is reaped; <= 0 disables.
//   - RateLimitRPS / RateLimitBurst: per-user limits on file routes; RPS <= 0 disables.
//   - S3*: object storage settings used when StorageBackend is "s3".
type Config struct {
	HTTPAddr       string
	GRPCHealthAddr string

	DatabaseDSN string
	DBUser      string
	DBPassword  string
	DBHost      string
	DBPort      int
	DBName      string

	SecretKey                   string
	TokenAlgorithm              string
	AccessTokenValidityDuration time.Duration

	UploadDir       string
	MaxUploadSizeMB int64
	StorageBackend  string
	DedupScope      string
	PendingFileTTL  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	LogLevel string

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
// NOTE: SecretKey in particular must be overridden in production.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.GRPCHealthAddr = ":50051"
	c.DBUser = "postgres"
	c.DBPassword = "postgres"
	c.DBHost = "db"
	c.DBPort = 5432
	c.DBName = "db"
	c.SecretKey = "secretKey"
	c.TokenAlgorithm = "HS256"
	c.AccessTokenValidityDuration = 30 * time.Minute
	c.UploadDir = "media"
	c.MaxUploadSizeMB = 10
	c.StorageBackend = StorageBackendLocal
	c.DedupScope = DedupScopeGlobal
	c.PendingFileTTL = 15 * time.Minute
	c.RateLimitRPS = 10
	c.RateLimitBurst = 20
	c.LogLevel = "info"
	c.S3Bucket = "gophvault"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// DSN returns DatabaseDSN, or a postgres URL built from the DB* parts.
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// MaxUploadBytes is the size ceiling in bytes; 0 means unlimited.
func (c *Config) MaxUploadBytes() int64 {
	if c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return c.MaxUploadSizeMB * 1024 * 1024
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is empty"))
	}
	switch c.TokenAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("unsupported token algorithm %q", c.TokenAlgorithm))
	}
	if c.AccessTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("access token validity must be positive"))
	}
	switch c.StorageBackend {
	case StorageBackendLocal:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("upload dir is empty"))
		}
	case StorageBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	switch c.DedupScope {
	case DedupScopeGlobal, DedupScopeOwner:
	default:
		errs = append(errs, fmt.Errorf("unknown dedup scope %q", c.DedupScope))
	}
	return errors.Join(errs...)
}

// Load builds a Config from defaults, then the JSON file named by -c/-config,
// then environment variables, then flags. args excludes the program name.
func Load(args []string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, fmt.Errorf("json config: %w", err)
	}
	if err := parseEnv(cfg, lookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over the process arguments and environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:], os.LookupEnv)
}
