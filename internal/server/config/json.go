package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Absent (zero) fields leave the current value untouched.
type JsonConfig struct {
	HTTPAddr                    string         `json:"http_addr"`
	GRPCHealthAddr              *string        `json:"grpc_health_addr"`
	DatabaseDSN                 string         `json:"database_dsn"`
	DBUser                      string         `json:"db_username"`
	DBPassword                  string         `json:"db_password"`
	DBHost                      string         `json:"db_host"`
	DBPort                      int            `json:"db_port"`
	DBName                      string         `json:"db_database"`
	SecretKey                   string         `json:"secret_key"`
	TokenAlgorithm              string         `json:"token_algorithm"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	UploadDir                   string         `json:"upload_dir"`
	MaxUploadSizeMB             *int64         `json:"max_upload_size_mb"`
	StorageBackend              string         `json:"storage_backend"`
	DedupScope                  string         `json:"dedup_scope"`
	PendingFileTTL              timex.Duration `json:"pending_file_ttl"`
	RateLimitRPS                *float64       `json:"rate_limit_rps"`
	RateLimitBurst              int            `json:"rate_limit_burst"`
	LogLevel                    string         `json:"log_level"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson overlays the file given by -c/-config onto config.
// No flag means nothing to load.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return err
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	if c.GRPCHealthAddr != nil {
		config.GRPCHealthAddr = *c.GRPCHealthAddr
	}
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.DBUser, c.DBUser)
	setString(&config.DBPassword, c.DBPassword)
	setString(&config.DBHost, c.DBHost)
	if c.DBPort != 0 {
		config.DBPort = c.DBPort
	}
	setString(&config.DBName, c.DBName)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenAlgorithm, c.TokenAlgorithm)
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	setString(&config.UploadDir, c.UploadDir)
	if c.MaxUploadSizeMB != nil {
		config.MaxUploadSizeMB = *c.MaxUploadSizeMB
	}
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DedupScope, c.DedupScope)
	if c.PendingFileTTL.Duration != 0 {
		config.PendingFileTTL = c.PendingFileTTL.Duration
	}
	if c.RateLimitRPS != nil {
		config.RateLimitRPS = *c.RateLimitRPS
	}
	if c.RateLimitBurst != 0 {
		config.RateLimitBurst = c.RateLimitBurst
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
