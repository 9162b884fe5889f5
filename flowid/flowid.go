// Package flowid derives the stable 128-bit flow identifiers exposed by
// the control API, using the same stable-id derivation idiom as
// site/site.go (deterministic ids built from fixed fields rather than
// random generation, so the same inputs always produce the same id).
package flowid

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ID is a stable 128-bit flow identifier.
type ID [16]byte

// RxFlowID derives the id for a received flow from the owning analyzer
// result's uuid, the shard (worker) index, the packet's RSS hash, and an
// optional signature stream id. The derivation XORs each field against a
// slice of resultUUID's bytes rather than hashing, so RxFlowIDInverse can
// recover the original fields exactly given the same resultUUID.
func RxFlowID(resultUUID uuid.UUID, shardIdx uint32, rssHash uint32, streamID uint32, hasStreamID bool) ID {
	var id ID
	var buf [13]byte
	binary.BigEndian.PutUint32(buf[0:4], shardIdx)
	binary.BigEndian.PutUint32(buf[4:8], rssHash)
	binary.BigEndian.PutUint32(buf[8:12], streamID)
	if hasStreamID {
		buf[12] = 1
	}
	for i := 0; i < 13; i++ {
		id[i] = buf[i] ^ resultUUID[i]
	}
	copy(id[13:16], resultUUID[13:16])
	return id
}

// RxFlowIDInverse recovers the fields RxFlowID encoded, given the same
// resultUUID used to derive id.
func RxFlowIDInverse(id ID, resultUUID uuid.UUID) (shardIdx, rssHash, streamID uint32, hasStreamID bool) {
	var buf [13]byte
	for i := 0; i < 13; i++ {
		buf[i] = id[i] ^ resultUUID[i]
	}
	shardIdx = binary.BigEndian.Uint32(buf[0:4])
	rssHash = binary.BigEndian.Uint32(buf[4:8])
	streamID = binary.BigEndian.Uint32(buf[8:12])
	hasStreamID = buf[12] != 0
	return
}

// TxFlowID derives the id for a generated flow: the first 8 bytes of the
// owning generator result's uuid, followed by the big-endian flow index.
func TxFlowID(resultUUID uuid.UUID, flowIdx uint64) ID {
	var id ID
	copy(id[0:8], resultUUID[0:8])
	binary.BigEndian.PutUint64(id[8:16], flowIdx)
	return id
}

// TxFlowIDInverse recovers the flow index TxFlowID encoded. The caller
// is expected to already know resultUUID; this only validates the
// prefix matches before decoding the flow index.
func TxFlowIDInverse(id ID, resultUUID uuid.UUID) (flowIdx uint64, ok bool) {
	for i := 0; i < 8; i++ {
		if id[i] != resultUUID[i] {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(id[8:16]), true
}
