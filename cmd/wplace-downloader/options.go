package main

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/craftxbox/wplace-downloader/internal/config"
	"github.com/craftxbox/wplace-downloader/internal/downloader"
	tilehttp "github.com/craftxbox/wplace-downloader/internal/http"
	"github.com/craftxbox/wplace-downloader/internal/proxy"
)

// loadConfig reads the config file, if any, and applies the environment.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// downloaderOptions translates cfg into options for the tile engine.
func downloaderOptions(cfg config.Config, placeholder []byte, log *zerolog.Logger) downloader.Options {
	return downloader.Options{
		OutputDir: cfg.OutputDir,
		HTTPOptions: tilehttp.Options{
			BaseURL:             cfg.BaseURL,
			Timeout:             cfg.Timeout,
			Headers:             cfg.Headers,
			DefaultRetryDelay:   cfg.Retry.Delay,
			MaxIdleConnsPerHost: cfg.Workers,
		},
		Pool:          proxy.NewPool(cfg.Proxies),
		Workers:       cfg.Workers,
		SpawnInterval: cfg.SpawnInterval,
		Policy: downloader.Policy{
			RequestInterval: cfg.RequestInterval,
			RetryMargin:     cfg.Retry.Margin,
			MaxAttempts:     cfg.Retry.MaxAttempts,
		},
		ProbeX:           cfg.Probe.X,
		ProbeY:           cfg.Probe.Y,
		SkipProbe:        cfg.Probe.Disabled,
		Placeholder:      placeholder,
		NoMerge:          !cfg.MergeImages,
		MergeMemoryLimit: cfg.MergeMemoryLimit,
		Progress:         cfg.Progress,
		Logger:           log,
	}
}

// jobList collects repeated -job flags.
type jobList []config.Job

func (l *jobList) String() string {
	names := make([]string, len(*l))
	for i, j := range *l {
		names[i] = j.Name
	}
	return strings.Join(names, ",")
}

func (l *jobList) Set(s string) error {
	job, err := config.ParseJob(s)
	if err != nil {
		return err
	}
	*l = append(*l, job)
	return nil
}
