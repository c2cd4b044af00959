package main

import (
	"testing"
	"time"

	"shadowstage/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestFPSLimiterPaces(t *testing.T) {
	t.Cleanup(func() { config.Set(config.Default()) })

	config.SetFPSLimit(100)
	l := NewFPSLimiter()
	start := time.Now()
	for range 5 {
		l.Wait()
	}
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	config.SetFPSLimit(0)
	start = time.Now()
	l.Wait()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
	assert.True(t, l.deadline.IsZero())
}
