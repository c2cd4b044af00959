package profiling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTopN(t *testing.T) {
	p := New()
	p.Add("stage.lighting", 2100*time.Microsecond)
	p.Add("stage.shadowmap", 4*time.Millisecond)
	p.Add("stage.shadowmap", 200*time.Microsecond)
	p.Add("renderer.update", 3*time.Millisecond)

	assert.Equal(t, "stage.shadowmap:4.2ms, renderer.update:3ms", p.TopN(2))
	assert.Len(t, p.Snapshot(), 3)

	p.ResetFrame()
	assert.Empty(t, p.Snapshot())
	assert.Equal(t, "", p.TopN(5))
}

func TestTrack(t *testing.T) {
	p := New()
	stop := p.Track("x")
	stop()
	_, ok := p.Snapshot()["x"]
	assert.True(t, ok)
}
