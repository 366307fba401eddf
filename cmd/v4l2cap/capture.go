//go:build linux

package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	v4l2 "github.com/edgevid/v4l2"
	"github.com/edgevid/v4l2/pkg/memory"
	"github.com/edgevid/v4l2/pkg/raw"
	"github.com/edgevid/v4l2/pkg/stats"
)

func newCaptureCmd() *cobra.Command {
	var profilePath string
	flags := defaultProfile()

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream frames from the device into a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prof, err := loadProfile(profilePath)
			if err != nil {
				return err
			}
			mergeFlags(cmd, &prof, flags)
			if prof.Device == "" {
				prof.Device = devicePath
			}
			return runCapture(prof)
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "f", "", "TOML capture profile")
	cmd.Flags().StringVar(&flags.PixelFormat, "format", flags.PixelFormat, "pixel format four-character code")
	cmd.Flags().Uint32Var(&flags.Width, "width", flags.Width, "frame width")
	cmd.Flags().Uint32Var(&flags.Height, "height", flags.Height, "frame height")
	cmd.Flags().Uint32Var(&flags.Buffers, "buffers", flags.Buffers, "buffer count")
	cmd.Flags().IntVarP(&flags.Frames, "frames", "n", flags.Frames, "frames to capture, 0 for unlimited")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", flags.Output, "output file")
	cmd.Flags().StringVar(&flags.MetricsAddr, "metrics", "", "address to serve Prometheus metrics on")
	cmd.Flags().Uint32Var(&flags.FrameRate, "fps", 0, "requested frame rate, 0 leaves the driver default")
	return cmd
}

// mergeFlags lets explicitly set flags win over the profile file.
func mergeFlags(cmd *cobra.Command, prof *profile, flags profile) {
	set := map[string]func(){
		"format":  func() { prof.PixelFormat = flags.PixelFormat },
		"width":   func() { prof.Width = flags.Width },
		"height":  func() { prof.Height = flags.Height },
		"buffers": func() { prof.Buffers = flags.Buffers },
		"frames":  func() { prof.Frames = flags.Frames },
		"output":  func() { prof.Output = flags.Output },
		"metrics": func() { prof.MetricsAddr = flags.MetricsAddr },
		"fps":     func() { prof.FrameRate = flags.FrameRate },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func runCapture(prof profile) error {
	pix, err := fourCC(prof.PixelFormat)
	if err != nil {
		return err
	}

	dev, err := v4l2.Open(prof.Device, v4l2.Capture)
	if err != nil {
		return err
	}
	defer dev.Close()

	format, err := dev.SetFormat(v4l2.Format{
		PixelFormat: pix,
		Width:       prof.Width,
		Height:      prof.Height,
		Planes:      []v4l2.PlaneFormat{{}},
	})
	if err != nil {
		return err
	}
	fmt.Printf("capturing %s from %s\n", format, prof.Device)

	if prof.FrameRate > 0 {
		granted, err := dev.SetFrameRate(prof.FrameRate)
		if err != nil {
			return err
		}
		fmt.Printf("frame rate: %d fps\n", granted)
	}

	if err := dev.Alloc(memory.NewMmap(dev.Fd()), prof.Buffers); err != nil {
		return err
	}

	out, err := os.Create(prof.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	if prof.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(prof.MetricsAddr, stats.Handler()); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}
	session := stats.NewSession(prof.Device)

	// Prime every slot before starting the stream.
	for i := uint32(0); i < uint32(dev.Buffers()); i++ {
		if err := dev.Enqueue(i, nil); err != nil {
			return err
		}
	}
	if err := dev.Start(); err != nil {
		return err
	}
	defer dev.Stop()

	for captured := 0; prof.Frames == 0 || captured < prof.Frames; captured++ {
		meta, err := dev.Dequeue(true)
		if err != nil {
			if errors.Is(err, raw.ErrEndOfStream) {
				break
			}
			session.Error()
			return err
		}
		session.Frame(meta.Sequence, meta.BytesUsed)

		regions, err := dev.Planes(meta.Index)
		if err != nil {
			return err
		}
		for i, r := range regions {
			n := meta.PlaneBytes[i]
			if n > uint32(len(r.Data)) {
				n = uint32(len(r.Data))
			}
			if _, err := out.Write(r.Data[:n]); err != nil {
				return err
			}
		}

		if err := dev.Enqueue(meta.Index, nil); err != nil {
			return err
		}
	}
	return nil
}
