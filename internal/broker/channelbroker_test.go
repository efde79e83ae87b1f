package broker_test

import (
	"github.com/myrjola/casefile/internal/broker"
	"github.com/myrjola/casefile/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
)

func TestChannelBroker(t *testing.T) {
	type testCase struct {
		name     string
		testFunc func(t *testing.T, b *broker.ChannelBroker[string, generation.Event])
	}
	tests := []testCase{
		{
			name: "subscriber receives events",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, generation.Event]) {
				channel := make(chan generation.Event)
				b.Publish("job", channel)
				go func() {
					channel <- generation.Event{Kind: generation.EventAttemptStarted, Attempt: 1}
					close(channel)
					b.Unpublish("job")
				}()
				events := <-b.Subscribe("job")
				require.Equal(t, generation.EventAttemptStarted, (<-events).Kind)
				_, ok := <-events
				require.False(t, ok, "channel not closed")
			},
		},
		{
			name: "unknown job closes the subscription",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, generation.Event]) {
				events, ok := <-b.Subscribe("nope")
				require.Nil(t, events)
				require.False(t, ok)
			},
		},
		{
			name: "later subscribers wait until the producer is finished",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, generation.Event]) {
				channel := make(chan generation.Event)
				b.Publish("job", channel)
				producerFinished := atomic.Bool{}

				events := <-b.Subscribe("job")

				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					next, ok := <-b.Subscribe("job")
					assert.Nil(t, next, "later subscriber received the stream")
					assert.False(t, ok, "channel not closed to signal the producer is finished")
					assert.True(t, producerFinished.Load(), "later subscriber unblocked before the producer finished")
				}()

				go func() {
					channel <- generation.Event{Kind: generation.EventAccepted, Attempt: 1, WorldID: "w"}
					close(channel)
					producerFinished.Store(true)
					b.Unpublish("job")
				}()
				event := <-events
				require.Equal(t, "w", event.WorldID)
				wg.Wait()

				last, ok := <-b.Subscribe("job")
				require.Nil(t, last)
				require.False(t, ok)
			},
		},
		{
			name: "unsubscribe hands the stream to the next subscriber",
			testFunc: func(t *testing.T, b *broker.ChannelBroker[string, generation.Event]) {
				channel := make(chan generation.Event, 1)
				b.Publish("job", channel)
				first := <-b.Subscribe("job")
				require.NotNil(t, first)

				second := b.Subscribe("job")
				b.Unsubscribe("job")
				events, ok := <-second
				require.True(t, ok)

				channel <- generation.Event{Kind: generation.EventFailed, Attempt: 5}
				require.Equal(t, generation.EventFailed, (<-events).Kind)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := broker.NewChannelBroker[string, generation.Event]()
			go br.Start()
			t.Cleanup(br.Stop)
			tt.testFunc(t, br)
		})
	}
}
