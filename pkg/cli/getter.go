package cli

import (
	"fmt"

	"github.com/spf13/viper"

	rget "github.com/modelget/rget/pkg"
	"github.com/modelget/rget/pkg/client"
	"github.com/modelget/rget/pkg/config"
	"github.com/modelget/rget/pkg/download"
	"github.com/modelget/rget/pkg/optname"
)

// NewGetter builds the client, downloader and getter from the bound flags.
// progress may be nil.
func NewGetter(progress func(line string)) (*rget.Getter, error) {
	clientOpts, err := config.ClientOptions()
	if err != nil {
		return nil, err
	}
	downloadOpts, err := config.DownloadOptions()
	if err != nil {
		return nil, err
	}
	headers, err := config.RequestHeaders()
	if err != nil {
		return nil, err
	}
	c, err := client.New(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("error creating http client: %w", err)
	}
	return &rget.Getter{
		Downloader: download.NewDownloader(c, downloadOpts),
		Options: rget.Options{
			MaxConcurrentFiles: viper.GetInt(optname.MaxConcurrentFiles),
			Extract:            viper.GetBool(optname.Extract),
			Progress:           progress,
			Headers:            headers,
			Duplicate:          download.ParseDuplicatePolicy(viper.GetString(optname.Duplicate)),
		},
	}, nil
}

// WithPIDFile runs fn while holding the lock at path. An empty path runs fn
// directly.
func WithPIDFile(path string, fn func() error) error {
	if path == "" {
		return fn()
	}
	pidFile, err := NewPIDFile(path)
	if err != nil {
		return fmt.Errorf("error opening pid file %s: %w", path, err)
	}
	if err := pidFile.Acquire(); err != nil {
		return fmt.Errorf("error acquiring lock on %s: %w", path, err)
	}
	defer func() { _ = pidFile.Release() }()
	return fn()
}
