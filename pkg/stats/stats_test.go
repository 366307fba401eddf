//go:build linux

package stats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionCountsFramesAndGaps(t *testing.T) {
	s := NewSession("/dev/video-test0")

	s.Frame(0, 1000)
	s.Frame(1, 1000)
	s.Frame(4, 1000) // sequences 2 and 3 never arrived

	assert.Equal(t, float64(3), testutil.ToFloat64(framesTotal.WithLabelValues("/dev/video-test0")))
	assert.Equal(t, float64(3000), testutil.ToFloat64(bytesTotal.WithLabelValues("/dev/video-test0")))
	assert.Equal(t, float64(2), testutil.ToFloat64(sequenceGaps.WithLabelValues("/dev/video-test0")))
}

func TestSessionErrors(t *testing.T) {
	s := NewSession("/dev/video-test1")
	s.Error()
	s.Error()
	assert.Equal(t, float64(2), testutil.ToFloat64(errorsTotal.WithLabelValues("/dev/video-test1")))
}
