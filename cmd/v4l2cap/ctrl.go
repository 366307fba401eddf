//go:build linux

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	v4l2 "github.com/edgevid/v4l2"
	"github.com/edgevid/v4l2/pkg/videodev"
)

var controlNames = map[string]uint32{
	"brightness": videodev.CtrlBrightness,
	"contrast":   videodev.CtrlContrast,
	"saturation": videodev.CtrlSaturation,
	"hue":        videodev.CtrlHue,
	"gain":       videodev.CtrlGain,
	"gamma":      videodev.CtrlGamma,
	"hflip":      videodev.CtrlHFlip,
	"vflip":      videodev.CtrlVFlip,
	"rotate":     videodev.CtrlRotate,
}

func newCtrlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ctrl <name> [value]",
		Short: "Read or write a device control",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := controlNames[args[0]]
			if !ok {
				return fmt.Errorf("unknown control %q", args[0])
			}

			dev, err := v4l2.Open(devicePath, v4l2.Capture)
			if err != nil {
				return err
			}
			defer dev.Close()

			if len(args) == 2 {
				value, err := strconv.ParseInt(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("value %q: %w", args[1], err)
				}
				if err := dev.SetControl(id, int32(value)); err != nil {
					return err
				}
			}

			v, err := dev.Control(id)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %d\n", args[0], v)
			return nil
		},
	}
}
