//go:build linux

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/edgevid/v4l2/pkg/videodev"
)

// profile is a capture configuration file. Flags override whatever the file
// sets.
type profile struct {
	Device      string `toml:"device"`
	PixelFormat string `toml:"pixel_format"`
	Width       uint32 `toml:"width"`
	Height      uint32 `toml:"height"`
	Buffers     uint32 `toml:"buffers"`
	Frames      int    `toml:"frames"`
	Output      string `toml:"output"`
	MetricsAddr string `toml:"metrics_addr"`
	FrameRate   uint32 `toml:"frame_rate"`
}

func defaultProfile() profile {
	return profile{
		PixelFormat: "YUYV",
		Width:       640,
		Height:      480,
		Buffers:     4,
		Frames:      100,
		Output:      "capture.raw",
	}
}

func loadProfile(path string) (profile, error) {
	p := defaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// fourCC turns a four-character format name into its numeric code.
func fourCC(name string) (uint32, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) != 4 {
		return 0, fmt.Errorf("pixel format %q is not a four-character code", name)
	}
	return videodev.FourCC(name[0], name[1], name[2], name[3]), nil
}
