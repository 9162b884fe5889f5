package flowstats

// FlowKey identifies a flow by the packet's RSS hash plus, when the
// sink decodes a transmitter signature, its stream id. FlowKey is
// comparable, so it can be used directly as a Go map key —
// no separate hash function is needed the way a non-comparable-key
// hash table would require one.
type FlowKey struct {
	RSSHash     uint32
	StreamID    uint32
	HasStreamID bool
}

// NewFlowKey builds a FlowKey from a decoded RSS hash and an optional
// stream id.
func NewFlowKey(rssHash uint32, streamID uint32, hasStreamID bool) FlowKey {
	if !hasStreamID {
		streamID = 0
	}
	return FlowKey{RSSHash: rssHash, StreamID: streamID, HasStreamID: hasStreamID}
}
