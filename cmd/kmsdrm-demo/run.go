package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kmsdrm-go/kmsdrm/pkg/kmsdrm"
)

func newRunCmd() *cobra.Command {
	var flipCount int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Set a video mode, flip a handful of frames, and quit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg)

			dev := kmsdrm.New(kmsdrm.Config{Logger: log})
			defer dev.VideoQuit()

			format, err := dev.VideoInit()
			if err != nil {
				return fmt.Errorf("video init: %w", err)
			}

			flags := bufferingFlags(cfg.Buffer)
			surf, err := dev.SetVideoMode(cfg.Width, cfg.Height, cfg.Depth, flags)
			if err != nil {
				return fmt.Errorf("set video mode %dx%d@%d: %w", cfg.Width, cfg.Height, cfg.Depth, err)
			}
			log.Info("video mode set", "w", surf.W, "h", surf.H, "pitch", surf.Pitch, "format_bpp", format.BitsPerPixel)

			for i := 0; i < flipCount; i++ {
				fillSolid(surf, uint8(i*32))
				if err := dev.FlipHWSurface(); err != nil {
					return fmt.Errorf("flip %d: %w", i, err)
				}
				time.Sleep(16 * time.Millisecond)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&flipCount, "flips", 60, "number of frames to present before quitting")
	return cmd
}

func bufferingFlags(mode string) uint32 {
	switch mode {
	case "triple":
		return kmsdrm.FlagTripleBuf
	case "double":
		return kmsdrm.FlagDoubleBuf
	default:
		return 0
	}
}

func fillSolid(surf *kmsdrm.Surface, shade uint8) {
	for i := range surf.Pixels {
		surf.Pixels[i] = shade
	}
}
