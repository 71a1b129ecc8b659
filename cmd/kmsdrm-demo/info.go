package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kmsdrm-go/kmsdrm/pkg/kmsdrm"
)

func newInfoCmd() *cobra.Command {
	var devicePath string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Open the DRM device and print discovered pipes and modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg)

			dev := kmsdrm.New(kmsdrm.Config{DevicePath: devicePath, Logger: log})
			defer dev.VideoQuit()

			format, err := dev.VideoInit()
			if err != nil {
				return fmt.Errorf("video init: %w", err)
			}
			fmt.Printf("video format: %d bpp (%d bytes/pixel)\n", format.BitsPerPixel, format.BytesPerPixel)

			for _, m := range dev.ListModes(format, 0) {
				tag := ""
				if m.Aspect {
					tag = " (aspect-corrected)"
				}
				fmt.Printf("  mode %dx%d%s\n", m.W, m.H, tag)
			}
			fmt.Println(humanize.Comma(int64(len(dev.ListModes(format, 0)))) + " modes total")
			return nil
		},
	}
	cmd.Flags().StringVar(&devicePath, "device", "", "DRM device path (default: SDL_VIDEO_KMSDRM_NODE or first /dev/dri/cardN)")
	return cmd
}
