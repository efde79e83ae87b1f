package broker

type publication[TID comparable, TPayload any] struct {
	id      TID
	channel chan TPayload
}

type subscription[TID comparable, TPayload any] struct {
	id      TID
	channel chan chan TPayload
}

// ChannelBroker hands a producer's channel to the first consumer asking for it.
// Later consumers of the same ID wait until the producer unpublishes and then see their channel closed,
// which tells them to read the final result from elsewhere.
//
// World generation jobs use it to stream progress events through SSE. The producer is the goroutine
// running the repair loop and the first consumer is the SSE handler. Further consumers are usually
// reconnects; they wait for the job to finish and then poll its status.
type ChannelBroker[TID comparable, TPayload any] struct {
	stop        chan struct{}
	publish     chan publication[TID, TPayload]
	unpublish   chan TID
	subscribe   chan subscription[TID, TPayload]
	unsubscribe chan TID
}

// NewChannelBroker creates a broker. Run Start in a goroutine and Stop when done.
func NewChannelBroker[TID comparable, TPayload any]() *ChannelBroker[TID, TPayload] {
	return &ChannelBroker[TID, TPayload]{
		stop:        make(chan struct{}),
		publish:     make(chan publication[TID, TPayload]),
		unpublish:   make(chan TID),
		subscribe:   make(chan subscription[TID, TPayload]),
		unsubscribe: make(chan TID),
	}
}

// Start handles publications and subscriptions until Stop is called.
func (b *ChannelBroker[TID, TPayload]) Start() {
	var (
		published = map[TID]chan TPayload{}
		claimed   = map[TID]bool{}
		waiting   = map[TID][]chan chan TPayload{}
	)
	for {
		select {
		case <-b.stop:
			for _, subscribers := range waiting {
				for _, s := range subscribers {
					close(s)
				}
			}
			return

		case s := <-b.subscribe:
			c, ok := published[s.id]
			switch {
			case !ok:
				// Finished or never started.
				close(s.channel)
			case !claimed[s.id]:
				claimed[s.id] = true
				s.channel <- c
			default:
				waiting[s.id] = append(waiting[s.id], s.channel)
			}

		case p := <-b.publish:
			published[p.id] = p.channel
			delete(claimed, p.id)

		case id := <-b.unpublish:
			for _, s := range waiting[id] {
				close(s)
			}
			delete(published, id)
			delete(claimed, id)
			delete(waiting, id)

		case id := <-b.unsubscribe:
			// The first consumer went away so the next one may take over the stream.
			if !claimed[id] {
				break
			}
			delete(claimed, id)
			if subscribers := waiting[id]; len(subscribers) > 0 {
				claimed[id] = true
				subscribers[0] <- published[id]
				waiting[id] = subscribers[1:]
			}
		}
	}
}

// Stop ends Start. Waiting subscribers see their channels closed.
func (b *ChannelBroker[TID, TPayload]) Stop() {
	close(b.stop)
}

// Subscribe asks for the channel published with id. The returned channel receives it if this is the first
// subscriber. It is closed without a value if nothing is published under id, or once the producer unpublishes
// while another subscriber holds the stream.
func (b *ChannelBroker[TID, TPayload]) Subscribe(id TID) chan chan TPayload {
	channel := make(chan chan TPayload, 1)
	b.subscribe <- subscription[TID, TPayload]{id: id, channel: channel}
	return channel
}

// Unsubscribe releases the stream held by the first subscriber of id. The longest waiting subscriber receives it.
func (b *ChannelBroker[TID, TPayload]) Unsubscribe(id TID) {
	b.unsubscribe <- id
}

// Publish makes channel available to the first subscriber of id.
func (b *ChannelBroker[TID, TPayload]) Publish(id TID, channel chan TPayload) {
	b.publish <- publication[TID, TPayload]{id: id, channel: channel}
}

// Unpublish removes id from the broker and releases the subscribers waiting for it. The producer should close
// its channel before unpublishing so the current subscriber sees the end of the stream.
func (b *ChannelBroker[TID, TPayload]) Unpublish(id TID) {
	b.unpublish <- id
}
