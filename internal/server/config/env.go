package config

import (
	"fmt"
	"strconv"
	"time"
)

// parseEnv overlays environment variables onto config. Variable names
// follow the deployment's .env file; unset variables are skipped.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	if v, ok := lookup("GRPC_HEALTH_ADDR"); ok {
		config.GRPCHealthAddr = v
	}
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("DB_USERNAME", &config.DBUser)
	str("DB_PASSWORD", &config.DBPassword)
	str("DB_HOST", &config.DBHost)
	str("DB_DATABASE", &config.DBName)
	str("PASSWORD_HASH_SECRET_KEY", &config.SecretKey)
	str("PASSWORD_HASH_ALGORITHM", &config.TokenAlgorithm)
	str("UPLOAD_DIR", &config.UploadDir)
	str("STORAGE_BACKEND", &config.StorageBackend)
	str("DEDUP_SCOPE", &config.DedupScope)
	str("LOG_LEVEL", &config.LogLevel)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	if v, ok := lookup("DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DB_PORT: %w", err)
		}
		config.DBPort = port
	}
	if v, ok := lookup("ACCESS_TOKEN_EXPIRE_MINUTES"); ok && v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
		}
		config.AccessTokenValidityDuration = time.Duration(minutes) * time.Minute
	}
	if v, ok := lookup("MAX_UPLOAD_SIZE_MB"); ok && v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_SIZE_MB: %w", err)
		}
		config.MaxUploadSizeMB = mb
	}
	if v, ok := lookup("PENDING_FILE_TTL"); ok && v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PENDING_FILE_TTL: %w", err)
		}
		config.PendingFileTTL = ttl
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok && v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		config.RateLimitRPS = rps
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok && v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		config.RateLimitBurst = burst
	}

	return nil
}
