package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorPublishAndSubscribe(t *testing.T) {
	c := NewCollector(4)

	_, ok := c.Last()
	assert.False(t, ok)

	s := Sample{SSRC: 1, Timestamp: time.Unix(100, 0)}
	c.Publish(s)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, s, last)

	got := <-c.Samples()
	assert.Equal(t, s, got)
}

func TestCollectorDropsOldestWhenFull(t *testing.T) {
	c := NewCollector(2)
	c.Publish(Sample{SSRC: 1})
	c.Publish(Sample{SSRC: 2})
	c.Publish(Sample{SSRC: 3}) // displaces SSRC 1

	first := <-c.Samples()
	second := <-c.Samples()
	assert.Equal(t, uint32(2), first.SSRC)
	assert.Equal(t, uint32(3), second.SSRC)

	last, ok := c.Last()
	require.True(t, ok)
	assert.Equal(t, uint32(3), last.SSRC)
}
