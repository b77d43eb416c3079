package agent

import (
	"sync"
)

// Stream delivers the events of one turn to one consumer. The producer
// blocks until each event is received. Closing the stream before the turn
// ends cancels the turn; remaining events are discarded.
type Stream struct {
	events  chan Event
	closed  chan struct{}
	done    chan struct{}
	onClose func()

	closeOnce sync.Once
	result    TurnResult
}

func newStream(onClose func()) *Stream {
	return &Stream{
		events:  make(chan Event),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Events returns the channel of events; it is closed when the turn ends
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Wait blocks until the turn ends. The caller must keep receiving from
// Events or Close the stream, otherwise the turn cannot progress.
func (s *Stream) Wait() TurnResult {
	<-s.done
	return s.result
}

// Done is closed when the turn has ended
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close stops delivery and cancels the turn if it is still running
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		select {
		case <-s.done:
		default:
			if s.onClose != nil {
				s.onClose()
			}
		}
	})
}

// emit hands an event to the consumer unless the stream was closed
func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

func (s *Stream) finish(result TurnResult) {
	s.result = result
	close(s.events)
	close(s.done)
}

// Collect drains the stream and returns every event with the turn result
func (s *Stream) Collect() ([]Event, TurnResult) {
	var events []Event
	for ev := range s.events {
		events = append(events, ev)
	}
	return events, s.Wait()
}
