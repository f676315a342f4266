package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filepin/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-r string   Redis address (host:port)
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-u string   temp upload directory
//	-p string   pinning provider API base URL
//	-g string   pinning provider gateway URL
//	-k string   pinning provider token
//	-m int      max job attempts
//	-l int      upload session TTL, minutes
//	-w int      max thumbnail width, pixels
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-r", "-s", "-t", "-u", "-p", "-g", "-k", "-m", "-l", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.TempUploadDir, "u", config.TempUploadDir, "temp upload directory")
	fs.StringVar(&config.ProviderBaseURL, "p", config.ProviderBaseURL, "pin provider API base URL")
	fs.StringVar(&config.ProviderGatewayURL, "g", config.ProviderGatewayURL, "pin provider gateway URL")
	fs.StringVar(&config.ProviderToken, "k", config.ProviderToken, "pin provider token")

	fs.IntVar(&config.QueueMaxAttempts, "m", config.QueueMaxAttempts, "max job attempts")
	uploadSessionTTL := fs.Int("l", int(config.UploadSessionTTL.Minutes()), "upload_session_ttl (in minutes)")
	fs.IntVar(&config.ThumbMaxWidth, "w", config.ThumbMaxWidth, "max thumbnail width (pixels)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.UploadSessionTTL = time.Duration(*uploadSessionTTL) * time.Minute
}
