package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	all := bus.Subscribe(4)
	defer all.Close()
	onlyDone := bus.Subscribe(4, RepriceDone)
	defer onlyDone.Close()

	bus.Emit(RepriceItem, "repricing", RepriceItemData{BatchID: "b", ItemID: 1, State: "applied"})
	bus.Emit(RepriceDone, "repricing", RepriceDoneData{BatchID: "b"})

	require.Len(t, all.C, 2)
	first := <-all.C
	assert.Equal(t, RepriceItem, first.Type)
	assert.Equal(t, "repricing", first.Module)
	assert.False(t, first.Timestamp.IsZero())

	require.Len(t, onlyDone.C, 1)
	got := <-onlyDone.C
	assert.Equal(t, RepriceDone, got.Type)
}

func TestBus_DropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	sub := bus.Subscribe(1)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Emit(ReconcileDone, "opportunities", nil)
	}

	assert.Len(t, sub.C, 1)
	assert.Equal(t, int64(4), sub.Dropped())
}

func TestBus_CloseUnsubscribes(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	sub := bus.Subscribe(1)
	assert.Equal(t, 1, bus.Subscribers())

	sub.Close()
	sub.Close()
	assert.Zero(t, bus.Subscribers())

	bus.Emit(ForecastRun, "forecasting", nil)
	_, open := <-sub.C
	assert.False(t, open)
}
