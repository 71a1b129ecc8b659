package main

import "github.com/kelseyhightower/envconfig"

// CLIConfig is the demo CLI's own knobs, layered on top of the backend's
// SDL_* environment variables (those stay read directly by pkg/kmsdrm, the
// same way the library reads them when embedded in a real host).
type CLIConfig struct {
	Width   int    `envconfig:"KMSDRM_DEMO_WIDTH" default:"640"`
	Height  int    `envconfig:"KMSDRM_DEMO_HEIGHT" default:"480"`
	Depth   int    `envconfig:"KMSDRM_DEMO_DEPTH" default:"16"`
	Buffer  string `envconfig:"KMSDRM_DEMO_BUFFERING" default:"triple"`
	LogJSON bool   `envconfig:"KMSDRM_DEMO_LOG_JSON" default:"false"`
}

func loadCLIConfig() (CLIConfig, error) {
	var cfg CLIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}
