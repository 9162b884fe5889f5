package flowid_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/openperf/packetcore/flowid"
)

func TestRxFlowIDRoundTrip(t *testing.T) {
	u := uuid.New()
	id := flowid.RxFlowID(u, 3, 0xdeadbeef, 42, true)
	shard, rss, stream, has := flowid.RxFlowIDInverse(id, u)
	if shard != 3 || rss != 0xdeadbeef || stream != 42 || !has {
		t.Fatalf("RxFlowIDInverse = (%d, %x, %d, %v), want (3, deadbeef, 42, true)", shard, rss, stream, has)
	}
}

func TestRxFlowIDNoStreamID(t *testing.T) {
	u := uuid.New()
	id := flowid.RxFlowID(u, 0, 7, 0, false)
	_, _, _, has := flowid.RxFlowIDInverse(id, u)
	if has {
		t.Fatal("hasStreamID should round-trip to false")
	}
}

func TestTxFlowIDRoundTrip(t *testing.T) {
	u := uuid.New()
	id := flowid.TxFlowID(u, 99999)
	idx, ok := flowid.TxFlowIDInverse(id, u)
	if !ok || idx != 99999 {
		t.Fatalf("TxFlowIDInverse = (%d, %v), want (99999, true)", idx, ok)
	}
}

func TestTxFlowIDInverseRejectsWrongUUID(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	id := flowid.TxFlowID(u1, 5)
	if _, ok := flowid.TxFlowIDInverse(id, u2); ok {
		t.Fatal("TxFlowIDInverse should reject an id derived from a different result uuid")
	}
}
