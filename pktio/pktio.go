// Package pktio defines the boundary between the packet-processing core
// (analyzer, capture, generator) and the packet I/O driver. The driver
// itself is out of scope here; it is expected to be a DPDK-backed mbuf
// pool with worker threads and port/queue plumbing. This package only
// specifies the surface the core needs from it, plus a small in-memory
// reference implementation (package pktio/sim) used by tests.
package pktio

import "time"

// Buffer is the per-packet handle the driver hands to the core.
// Implementations are expected to be backed by driver-owned mbuf
// memory; Data returns a view into that memory, not a copy.
type Buffer interface {
	// Length returns the packet length in bytes, as received (or as set by
	// a prior call to SetLength).
	Length() uint16
	// MaxLength returns the capacity of the backing storage.
	MaxLength() uint16
	// Data returns the raw packet bytes starting at offset. The returned
	// slice aliases driver-owned memory and is valid only for the lifetime
	// of the burst that produced this Buffer.
	Data(offset int) []byte

	// RxTimestamp returns the receive timestamp in realtime nanoseconds.
	RxTimestamp() int64
	// RSSHash returns the driver's RSS hash for the packet.
	RSSHash() uint32
	// PacketTypeFlags returns the decoded protocol-lane bitfield.
	PacketTypeFlags() PacketTypeFlags

	// SignatureStreamID returns the Spirent-style signature stream id, if
	// the packet carries a decoded signature.
	SignatureStreamID() (uint32, bool)
	// SignatureSequenceNumber returns the decoded signature sequence
	// number, if present.
	SignatureSequenceNumber() (uint32, bool)
	// SignatureTxTimestamp returns the decoded signature transmit
	// timestamp (realtime nanoseconds), if present.
	SignatureTxTimestamp() (int64, bool)
	// PRBSBitErrors returns the decoded PRBS bit-error count, if the
	// packet carries a PRBS payload.
	PRBSBitErrors() (uint32, bool)

	// IPChecksumError, TCPChecksumError and UDPChecksumError report
	// hardware/offload checksum validation results.
	IPChecksumError() bool
	TCPChecksumError() bool
	UDPChecksumError() bool
	// FCSError reports whether the frame check sequence failed.
	FCSError() bool

	// TxSink reports the direction flag: false for rx, true for tx.
	TxSink() bool

	// SetLength updates the packet length, e.g. after the generator
	// rewrites a template into an mbuf.
	SetLength(n uint16)
	// SetTxOffload records header lengths and offload flags for the
	// driver to apply on transmit (checksum/segmentation offload).
	SetTxOffload(hdrLens HeaderLengths, flags TxOffloadFlags)
	// SetSignature stamps a Spirent-style signature into the packet,
	// called by the generator when a flow's definition carries a
	// signature configuration.
	SetSignature(streamID, seq uint32, flags uint32)
}

// TxOffloadFlags requests driver-side offload behavior for a transmitted
// packet.
type TxOffloadFlags uint32

const (
	TxOffloadIPChecksum TxOffloadFlags = 1 << iota
	TxOffloadTCPChecksum
	TxOffloadUDPChecksum
	TxOffloadTSO
)

// FeatureFlags are the decode/offload capabilities a sink or source can
// request from the driver via uses_feature.
type FeatureFlags uint32

const (
	FeatureRxTimestamp FeatureFlags = 1 << iota
	FeatureRSSHash
	FeaturePacketTypeDecode
	FeatureSignatureDecode
	FeatureSignatureEncode
	FeaturePRBSErrorDetect
)

func (f FeatureFlags) Has(bit FeatureFlags) bool { return f&bit != 0 }

// Union combines feature-flag sets, e.g. a sink's own requirements with
// those of an attached filter.
func Union(flags ...FeatureFlags) FeatureFlags {
	var out FeatureFlags
	for _, f := range flags {
		out |= f
	}
	return out
}

// Sink is the driver-side registration surface for a component that
// consumes received bursts (analyzer, capture).
type Sink interface {
	// Push is invoked by the owning I/O worker on every poll with up to
	// len(pkts) received buffers. It must not block and must return the
	// number of packets it considers handled: no operation in the core
	// is allowed to block.
	Push(pkts []Buffer) int
	// RequiredFeatures reports the FeatureFlags this sink needs the
	// driver to enable.
	RequiredFeatures() FeatureFlags
}

// Source is the driver-side registration surface for a component that
// produces transmit bursts (generator).
type Source interface {
	// Transform fills up to len(out) buffers drawn from in (recycled
	// mbufs) and returns the number written.
	Transform(in []Buffer, out []Buffer) int
	RequiredFeatures() FeatureFlags
}

// Now returns realtime nanoseconds, the same clock basis as RxTimestamp.
// Exists so the sim driver and the core agree on one time source.
func Now() int64 { return time.Now().UnixNano() }
