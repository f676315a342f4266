package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/filepin/internal/flagx"
	"github.com/dmitrijs2005/filepin/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	RedisAddr                   string         `json:"redis_addr"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`
	TempUploadDir               string         `json:"temp_upload_dir"`
	ProviderBaseURL             string         `json:"provider_base_url"`
	ProviderGatewayURL          string         `json:"provider_gateway_url"`
	ProviderToken               string         `json:"provider_token"`
	ProviderTimeout             timex.Duration `json:"provider_timeout"`
	QueueMaxAttempts            int            `json:"queue_max_attempts"`
	QueueBackoffBase            timex.Duration `json:"queue_backoff_base"`
	QueueBackoffCap             timex.Duration `json:"queue_backoff_cap"`
	UploadSessionTTL            timex.Duration `json:"upload_session_ttl"`
	ThumbMaxWidth               int            `json:"thumb_max_width"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path is taken from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.RedisAddr = c.RedisAddr
	config.SecretKey = c.SecretKey
	config.AccessTokenValidityDuration = time.Duration(c.AccessTokenValidityDuration.Duration)
	config.TempUploadDir = c.TempUploadDir
	config.ProviderBaseURL = c.ProviderBaseURL
	config.ProviderGatewayURL = c.ProviderGatewayURL
	config.ProviderToken = c.ProviderToken
	config.ProviderTimeout = time.Duration(c.ProviderTimeout.Duration)
	config.QueueMaxAttempts = c.QueueMaxAttempts
	config.QueueBackoffBase = time.Duration(c.QueueBackoffBase.Duration)
	config.QueueBackoffCap = time.Duration(c.QueueBackoffCap.Duration)
	config.UploadSessionTTL = time.Duration(c.UploadSessionTTL.Duration)
	config.ThumbMaxWidth = c.ThumbMaxWidth
}
