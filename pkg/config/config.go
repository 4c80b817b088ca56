package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/modelget/rget/pkg/client"
	"github.com/modelget/rget/pkg/download"
	"github.com/modelget/rget/pkg/logging"
	"github.com/modelget/rget/pkg/optname"
)

const (
	EnvPrefix      = "RGET"
	defaultEnvFile = ".env"
)

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().String(optname.APIKey, "", "API key sent as a bearer token (or RGET_API_KEY, also read from .env)")
	cmd.PersistentFlags().String(optname.ChunkSize, "256KiB", "Read and write unit when streaming to disk (e.g. 1MiB)")
	cmd.PersistentFlags().String(optname.Config, "", "Config file (yaml, toml or json)")
	cmd.PersistentFlags().Duration(optname.ConnTimeout, 0, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s (default is --timeout)")
	cmd.PersistentFlags().String(optname.Duplicate, download.Reject.String(), "What to do when the destination exists: reject, overwrite or rename-new")
	cmd.PersistentFlags().String(optname.EnvFile, defaultEnvFile, "Dotenv file to load before reading RGET_* variables")
	cmd.PersistentFlags().BoolP(optname.Extract, "x", false, "Extract archive after download")
	cmd.PersistentFlags().StringArrayP(optname.Header, "H", []string{}, "Extra request header \"Key: Value\" (repeatable)")
	cmd.PersistentFlags().String(optname.LoggingLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String(optname.PIDFile, "", "Lock file serialising concurrent rget processes")
	cmd.PersistentFlags().Bool(optname.ProgressBar, false, "Draw a progress bar in front of the progress line")
	cmd.PersistentFlags().String(optname.Proxy, "", "Proxy URL for all requests")
	cmd.PersistentFlags().StringSlice(optname.Resolve, []string{}, "Resolve hostnames to specific IPs, format is <hostname>:<port>:<ip>")
	cmd.PersistentFlags().IntP(optname.Retries, "r", client.DefaultMaxRetries, "Number of retries after the first attempt")
	cmd.PersistentFlags().Duration(optname.Timeout, client.DefaultTimeout, "Timeout for connecting, waiting for headers and each body read")
	cmd.PersistentFlags().Bool(optname.TLSVerify, false, "Verify TLS certificates")
	cmd.PersistentFlags().BoolP(optname.Verbose, "v", false, "Verbose mode (equivalent to --log-level debug)")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if err := loadEnvFile(viper.GetString(optname.EnvFile)); err != nil {
		return err
	}
	if configFile := viper.GetString(optname.Config); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}
	if viper.GetBool(optname.Verbose) {
		viper.Set(optname.LoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(optname.LoggingLevel))
	return nil
}

// loadEnvFile exports the variables in path without overriding the real
// environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	logger := logging.GetLogger()
	logger.Debug().Str("env_file", path).Msg("Config")
	return nil
}

func setLogLevel(logLevel string) {
	// Set log-level
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ResolveOverridesToMap turns <hostname>:<port>:<ip> entries into the
// host:port to ip:port map the client dialer consumes.
func ResolveOverridesToMap(resolveHosts []string) (map[string]string, error) {
	logger := logging.GetLogger()
	resolveOverrides := make(map[string]string)

	if len(resolveHosts) == 0 {
		return nil, nil
	}

	for _, resolveHost := range resolveHosts {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverrides[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified with different targets: %s", hostPort)
		}
		resolveOverrides[hostPort] = target
	}
	for key, elem := range resolveOverrides {
		logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
	}
	return resolveOverrides, nil
}

// ParseHeaders parses "Key: Value" strings. Later values for the same key are
// appended.
func ParseHeaders(values []string) (http.Header, error) {
	headers := make(http.Header)
	for _, value := range values {
		key, val, found := strings.Cut(value, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", value)
		}
		headers.Add(key, strings.TrimSpace(val))
	}
	return headers, nil
}

// RequestHeaders returns the --header values plus the bearer token from
// --api-key. An explicit Authorization header wins over the API key.
func RequestHeaders() (http.Header, error) {
	headers, err := ParseHeaders(viper.GetStringSlice(optname.Header))
	if err != nil {
		return nil, err
	}
	if apiKey := viper.GetString(optname.APIKey); apiKey != "" && headers.Get("Authorization") == "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}
	return headers, nil
}

func ClientOptions() (client.Options, error) {
	overrides, err := ResolveOverridesToMap(viper.GetStringSlice(optname.Resolve))
	if err != nil {
		return client.Options{}, err
	}
	retries := viper.GetInt(optname.Retries)
	switch {
	case retries < 0:
		return client.Options{}, fmt.Errorf("--%s must not be negative", optname.Retries)
	case retries == 0:
		// client.Options treats zero as "use the default".
		retries = -1
	}
	return client.Options{
		MaxRetries:       retries,
		Timeout:          viper.GetDuration(optname.Timeout),
		ConnectTimeout:   viper.GetDuration(optname.ConnTimeout),
		Proxy:            viper.GetString(optname.Proxy),
		TLSVerify:        viper.GetBool(optname.TLSVerify),
		BackoffUnit:      time.Second,
		ResolveOverrides: overrides,
	}, nil
}

func DownloadOptions() (download.Options, error) {
	chunkSize, err := humanize.ParseBytes(viper.GetString(optname.ChunkSize))
	if err != nil {
		return download.Options{}, fmt.Errorf("invalid --%s: %w", optname.ChunkSize, err)
	}
	if chunkSize == 0 {
		return download.Options{}, fmt.Errorf("--%s must be positive", optname.ChunkSize)
	}
	return download.Options{
		ChunkSize: int64(chunkSize),
		ShowBar:   viper.GetBool(optname.ProgressBar),
	}, nil
}
