package app

// Emitter takes the responses of the worker. Emit must not block.
type Emitter interface {
	Emit(r Response)
}

// ChanEmitter queues responses on a channel, dropping them when nobody keeps
// up with it.
type ChanEmitter chan Response

func (c ChanEmitter) Emit(r Response) {
	select {
	case c <- r:
	default:
		log.W.F("output queue full, dropping %s", r.ResponseType())
	}
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(r Response)

func (f EmitterFunc) Emit(r Response) { f(r) }
