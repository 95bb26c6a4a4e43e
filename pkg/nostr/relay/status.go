package relay

// Status is the connection state of a relay as the engine sees it. It is
// kept by the Relay but only ever changed by its owner, see SetStatus.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	}
	return "disconnected"
}

// Code is the stable number a status is reported as to clients.
func (s Status) Code() int {
	switch s {
	case Connected:
		return 5
	case Connecting:
		return 1
	}
	return 4
}
