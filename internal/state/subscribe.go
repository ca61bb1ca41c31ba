package state

// Subscribe returns a channel that always holds the most recent snapshot.
// A slow reader skips intermediate snapshots instead of blocking the loop.
// The channel is closed by cancel or when the controller stops.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	// flush stores latest before broadcast takes subMu, so seeding under the
	// lock either sees that version or is registered in time to receive it.
	c.subMu.Lock()
	ch <- *c.latest.Load()
	if c.closed {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()
	c.metrics.SubscriberAdded()

	cancel := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
			c.metrics.SubscriberRemoved()
		}
	}
	return ch, cancel
}

func (c *Controller) broadcast(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// replace the unread snapshot
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (c *Controller) closeSubscribers() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
		c.metrics.SubscriberRemoved()
	}
}
