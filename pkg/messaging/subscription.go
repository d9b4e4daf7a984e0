package messaging

import (
	"sync"
)

// Pipe is a Subscription backed by a buffered channel. Broker implementations
// feed it from their receive loop; tests use it directly as a fake.
type Pipe struct {
	ch      chan []byte
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	onClose func()
}

func NewPipe(buffer int, onClose func()) *Pipe {
	return &Pipe{
		ch:      make(chan []byte, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (p *Pipe) Messages() <-chan []byte { return p.ch }

func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the subscription ends for any reason.
func (p *Pipe) Done() <-chan struct{} { return p.done }

// Send delivers payload unless the pipe has ended. It blocks while the buffer
// is full, so a slow consumer applies back-pressure to the receive loop.
func (p *Pipe) Send(payload []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.ch <- payload:
		return true
	case <-p.done:
		return false
	}
}

// Fail ends the pipe with a transport error. The receive loop that owns the
// pipe must call Finish after its last Send.
func (p *Pipe) Fail(err error) {
	p.end(err)
}

// Close ends the pipe on behalf of the consumer.
func (p *Pipe) Close() error {
	p.end(ErrClosed)
	return nil
}

// Finish closes the message channel. Only the single sending goroutine may
// call it, after it has stopped sending.
func (p *Pipe) Finish() {
	p.end(ErrClosed)
	close(p.ch)
}

func (p *Pipe) end(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
		if p.onClose != nil {
			p.onClose()
		}
	})
}
