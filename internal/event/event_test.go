package event_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/rateroom/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a subscriber only receives events it subscribed to": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("voting.started"),
						eventWithName("voting.ended"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"voting.ended"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("voting.ended")}, out.received["s1"])
			},
		},

		"repeated events are all delivered": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("results.updated"),
						eventWithName("results.updated"),
						eventWithName("results.updated"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"results.updated"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.Len(t, out.received["s1"], 3)
			},
		},

		"one event fans out to every subscriber": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("voting.ended"),
					},
					subscribers: []subscriber{
						{name: "s1", subscribeTo: []string{"voting.ended"}},
						{name: "s2", subscribeTo: []string{"voting.ended"}},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("voting.ended")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("voting.ended")}, out.received["s2"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				s := s
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := event.NewBus()

	var (
		mu        sync.Mutex
		delivered int
	)

	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		panic("boom")
	})
	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("e"))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered, "healthy handler should still run")
}

func TestBus_FailingHandlerIsIsolated(t *testing.T) {
	b := event.NewBus()

	var (
		mu        sync.Mutex
		delivered int
	)

	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		return fmt.Errorf("handler failed")
	})
	b.Subscribe("e", func(ctx context.Context, e event.Event) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName("e"))
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}
