package realtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexabase-io/nexabase/internal/config"
	"github.com/nexabase-io/nexabase/internal/records"
)

func TestActivityLogNewestFirst(t *testing.T) {
	l := newActivityLog(5)
	for i := 0; i < 3; i++ {
		l.add(ActivityEntry{Detail: fmt.Sprintf("e%d", i)})
	}

	out := l.snapshot()
	require.Len(t, out, 3)
	assert.Equal(t, "e2", out[0].Detail)
	assert.Equal(t, "e0", out[2].Detail)
}

func TestActivityLogOverwritesOldest(t *testing.T) {
	l := newActivityLog(3)
	for i := 0; i < 5; i++ {
		l.add(ActivityEntry{Detail: fmt.Sprintf("e%d", i)})
	}

	out := l.snapshot()
	require.Len(t, out, 3)
	assert.Equal(t, "e4", out[0].Detail)
	assert.Equal(t, "e3", out[1].Detail)
	assert.Equal(t, "e2", out[2].Detail)
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus(config.RealtimeConfig{Enabled: true, BroadcastBuffer: 1000}, nil)

	for i := 0; i < cap(bus.events); i++ {
		bus.Publish(records.Event{Collection: "articles", RecordID: int64(i)})
	}
	require.Equal(t, cap(bus.events), len(bus.events))

	// The channel is full; the next publish must not block.
	bus.Publish(records.Event{Collection: "articles", RecordID: 9999})
	assert.Equal(t, cap(bus.events), len(bus.events))
}

func TestBusStatusAndStats(t *testing.T) {
	bus := NewBus(config.RealtimeConfig{Enabled: true}, nil)

	st := bus.Status()
	assert.True(t, st.Enabled)
	assert.Zero(t, st.Connections)

	stats := bus.Stats()
	assert.True(t, stats.Enabled)
	assert.Zero(t, stats.Connections)
	assert.Equal(t, 1000, stats.QueueCapacity)
}
