package builder

import (
	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/services"
)

// Delivers progress events to the caller's callback from a single
// goroutine, in the order they were sent. Send may be called from any
// goroutine.
type progressEmitter struct {
	cb     services.ProgressFunc
	events chan services.ProgressEvent
	done   chan bool
}

func newProgressEmitter(cb services.ProgressFunc) *progressEmitter {
	self := &progressEmitter{cb: cb}
	if cb == nil {
		return self
	}

	self.events = make(chan services.ProgressEvent, 100)
	self.done = make(chan bool)

	go func() {
		defer close(self.done)

		for event := range self.events {
			self.cb(event)
		}
	}()

	return self
}

func (self *progressEmitter) Send(event services.ProgressEvent) {
	if self.events == nil {
		return
	}
	self.events <- event
}

// Wait for all events to be delivered. No events may be sent after
// Close.
func (self *progressEmitter) Close() {
	if self.events == nil {
		return
	}
	close(self.events)
	<-self.done
}
