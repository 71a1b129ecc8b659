package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"github.com/kmsdrm-go/kmsdrm/pkg/kmsdrm"
)

func newColorsCmd() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "colors",
		Short: "Set an 8bpp video mode and push a random 256-entry gamma LUT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg)

			dev := kmsdrm.New(kmsdrm.Config{Logger: log})
			defer dev.VideoQuit()

			if _, err := dev.VideoInit(); err != nil {
				return fmt.Errorf("video init: %w", err)
			}
			if _, err := dev.SetVideoMode(cfg.Width, cfg.Height, 8, 0); err != nil {
				return fmt.Errorf("set video mode: %w", err)
			}

			r := rand.New(rand.NewSource(seed))
			palette := make([]kmsdrm.Color, 256)
			for i := range palette {
				palette[i] = kmsdrm.Color{R: uint8(r.Intn(256)), G: uint8(r.Intn(256)), B: uint8(r.Intn(256))}
			}
			if err := dev.SetColors(0, len(palette), palette); err != nil {
				return fmt.Errorf("set colors: %w", err)
			}
			log.Info("gamma LUT published", "entries", len(palette))
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 1, "PRNG seed for the generated palette")
	return cmd
}
