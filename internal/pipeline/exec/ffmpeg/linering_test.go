// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRing(t *testing.T) {
	r := NewLineRing(3)

	for i := 1; i <= 2; i++ {
		_, _ = fmt.Fprintf(r, "frame=%d\n", i*30)
	}
	assert.Equal(t, []string{"frame=30", "frame=60"}, r.LastN(10))

	_, _ = fmt.Fprintf(r, "frame=90\n")
	assert.Equal(t, []string{"frame=30", "frame=60", "frame=90"}, r.LastN(10))

	// oldest line is overwritten
	_, _ = fmt.Fprintf(r, "rtmp: broken pipe\n")
	assert.Equal(t, []string{"frame=60", "frame=90", "rtmp: broken pipe"}, r.LastN(10))
	assert.Equal(t, []string{"frame=90", "rtmp: broken pipe"}, r.LastN(2))
}

func TestLineRing_MultiLineWrites(t *testing.T) {
	r := NewLineRing(5)
	n, err := r.Write([]byte("Input #0, matroska,webm\n\nStream #0:0: Video: vp8\n"))

	assert.NoError(t, err)
	assert.Equal(t, 49, n)
	assert.Equal(t, []string{"Input #0, matroska,webm", "Stream #0:0: Video: vp8"}, r.LastN(10))
}

func TestLineRing_DefaultCapacity(t *testing.T) {
	r := NewLineRing(0)
	for i := 0; i < 60; i++ {
		_, _ = fmt.Fprintf(r, "line %d\n", i)
	}
	last := r.LastN(100)
	assert.Len(t, last, 50)
	assert.Equal(t, "line 10", last[0])
	assert.Equal(t, "line 59", last[49])
}
