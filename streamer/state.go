package streamer

// State is the lifecycle state of a Streamer.
//
//	Created -> Configuring -> Negotiating -> Streaming -> Stopping -> Stopped
//
// Failed is entered from any state on a fatal error and left only by Stop.
type State int32

const (
	StateCreated State = iota
	StateConfiguring
	StateNegotiating
	StateStreaming
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = map[State]string{
	StateCreated:     "created",
	StateConfiguring: "configuring",
	StateNegotiating: "negotiating",
	StateStreaming:   "streaming",
	StateStopping:    "stopping",
	StateStopped:     "stopped",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// validTransitions lists the forward moves. Stopping is reachable from
// every state but Stopping and Stopped, Failed from every state but those
// two and Failed itself.
var validTransitions = map[State]State{
	StateCreated:     StateConfiguring,
	StateConfiguring: StateNegotiating,
	StateNegotiating: StateStreaming,
	StateStopping:    StateStopped,
}

func (s State) canTransit(to State) bool {
	switch to {
	case StateStopping:
		return s != StateStopping && s != StateStopped
	case StateFailed:
		return s != StateStopping && s != StateStopped && s != StateFailed
	}
	next, ok := validTransitions[s]
	return ok && next == to
}
