package config

import (
	"flag"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {

	// Test cases
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-d", "db", "-r", "127.0.0.1:6380", "-s", "secret",
			"-t", "30", "-u", "/tmp/up", "-p", "http://pin", "-g", "http://gw", "-k", "token",
			"-m", "3", "-l", "60", "-w", "200",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrHTTP:            "127.0.0.1:9090",
				DatabaseDSN:                 "db",
				RedisAddr:                   "127.0.0.1:6380",
				SecretKey:                   "secret",
				AccessTokenValidityDuration: 30 * time.Minute,
				TempUploadDir:               "/tmp/up",
				ProviderBaseURL:             "http://pin",
				ProviderGatewayURL:          "http://gw",
				ProviderToken:               "token",
				QueueMaxAttempts:            3,
				UploadSessionTTL:            60 * time.Minute,
				ThumbMaxWidth:               200,
			}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {

				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
