//go:build linux

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	v4l2 "github.com/edgevid/v4l2"
	"github.com/edgevid/v4l2/pkg/raw"
	"github.com/edgevid/v4l2/pkg/videodev"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print device capabilities, formats and frame sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dev, err := v4l2.Open(devicePath, v4l2.Capture)
			if err != nil {
				return err
			}
			defer dev.Close()

			fmt.Printf("%s\n  driver: %s\n  bus:    %s\n", dev.Card(), dev.Driver(), dev.BusInfo())

			formats, err := dev.Formats()
			if err != nil {
				return err
			}
			for _, f := range formats {
				fmt.Printf("  %s  %s\n", videodev.FourCCString(f.PixelFormat), f.Description)
				sizes, err := dev.FrameSizes(f.PixelFormat)
				if err != nil {
					return err
				}
				for _, s := range sizes {
					if s.StepWidth == 0 {
						fmt.Printf("    %dx%d\n", s.MinWidth, s.MinHeight)
					} else {
						fmt.Printf("    %dx%d .. %dx%d step %dx%d\n",
							s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight, s.StepWidth, s.StepHeight)
					}
				}
			}

			for name, id := range controlNames {
				v, err := dev.Control(id)
				if errors.Is(err, raw.ErrInvalid) {
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("  control %s = %d\n", name, v)
			}
			return nil
		},
	}
}
