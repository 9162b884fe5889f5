package bpfengine

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/bpf"
)

// Evaluation buffer layout: every burst API builds an 8-byte pseudo-header
// in front of the real packet bytes so that PKTFLAGS/STREAM_ID pseudo-
// registers can be read with ordinary BPF absolute loads, exactly like
// the on-wire Ethernet/IP bytes that follow. This keeps "pure special",
// "pure normal" and "mixed" programs all executable by a single
// golang.org/x/net/bpf VM instance, as one compiled filter program.
const (
	pseudoHeaderLen  = 8
	offPktflags      = 0 // 1 byte: 7-bit PKTFLAGS register
	offStreamID      = 4 // 4 bytes, big-endian

	offEtherDst  = pseudoHeaderLen + 0
	offEtherSrc  = pseudoHeaderLen + 6
	offEtherType = pseudoHeaderLen + 12
	ipStart      = pseudoHeaderLen + 14

	offIPv4Src   = ipStart + 12
	offIPv4Dst   = ipStart + 16
	offIPv4Proto = ipStart + 9

	offIPv6Src        = ipStart + 8
	offIPv6Dst        = ipStart + 24
	offIPv6NextHeader = ipStart + 6

	// assumes a fixed 20-byte IPv4 header (no options), a
	// representative-corpus simplification.
	l4Start    = ipStart + 20
	offL4Sport = l4Start + 0
	offL4Dport = l4Start + 2

	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// pktBit* are the PKTFLAGS register bit positions, enumerating the seven
// source error/presence bits in order.
const (
	pktBitFCS = 1 << iota
	pktBitIPChecksum
	pktBitTCPChecksum
	pktBitUDPChecksum
	pktBitICMPChecksum
	pktBitPRBS
	pktBitSignature
)

// BuildPktflags assembles the one-byte PKTFLAGS register from a packet's
// decoded error/signature state.
func BuildPktflags(fcsErr, ipErr, tcpErr, udpErr, icmpErr, prbsErr, hasSig bool) byte {
	var b byte
	set := func(cond bool, bit byte) {
		if cond {
			b |= bit
		}
	}
	set(fcsErr, pktBitFCS)
	set(ipErr, pktBitIPChecksum)
	set(tcpErr, pktBitTCPChecksum)
	set(udpErr, pktBitUDPChecksum)
	set(icmpErr, pktBitICMPChecksum)
	set(prbsErr, pktBitPRBS)
	set(hasSig, pktBitSignature)
	return b
}

// --- two-pass IR assembler -------------------------------------------------

type irKind int

const (
	irLoadAbs irKind = iota
	irLoadLenExt
	irJEQ
	irJSET
	irJLT
	irJGT
	irRetPass
	irRetFail
)

type irInstr struct {
	kind   irKind
	off    uint32
	size   int
	k      uint32
	jt, jf string
}

type codegen struct {
	instrs  []irInstr
	labels  map[string]int
	pending []string
	counter int
}

func newCodegen() *codegen { return &codegen{labels: map[string]int{}} }

func (c *codegen) newLabel() string {
	c.counter++
	return fmt.Sprintf("L%d", c.counter)
}

func (c *codegen) markLabel(name string) { c.pending = append(c.pending, name) }

func (c *codegen) emit(in irInstr) {
	for _, l := range c.pending {
		c.labels[l] = len(c.instrs)
	}
	c.pending = nil
	c.instrs = append(c.instrs, in)
}

// compileTree emits the short-circuit boolean codegen for a (rewritten)
// filter tree: build a jump-map across the AST and resolve PASS/FAIL
// targets to the final RET 0x40000 / RET 0 instructions.
func compileTree(root *Node) (*codegen, error) {
	c := newCodegen()
	const T, F = "PASS", "FAIL"
	if err := compileNode(c, root, T, F); err != nil {
		return nil, err
	}
	c.markLabel(T)
	c.emit(irInstr{kind: irRetPass})
	c.markLabel(F)
	c.emit(irInstr{kind: irRetFail})
	return c, nil
}

func compileNode(c *codegen, n *Node, T, F string) error {
	switch n.Kind {
	case KindValid:
		c.emit(irInstr{kind: irLoadAbs, off: offPktflags, size: 1})
		c.emit(irInstr{kind: irJSET, k: uint32(n.Valid), jt: T, jf: F})
		return nil

	case KindSignature:
		if !n.HasStreamIDRange {
			c.emit(irInstr{kind: irLoadAbs, off: offPktflags, size: 1})
			c.emit(irInstr{kind: irJSET, k: pktBitSignature, jt: T, jf: F})
			return nil
		}
		mid := c.newLabel()
		c.emit(irInstr{kind: irLoadAbs, off: offPktflags, size: 1})
		c.emit(irInstr{kind: irJSET, k: pktBitSignature, jt: mid, jf: F})
		c.markLabel(mid)
		c.emit(irInstr{kind: irLoadAbs, off: offStreamID, size: 4})
		if n.StreamIDLow == n.StreamIDHigh {
			c.emit(irInstr{kind: irJEQ, k: n.StreamIDLow, jt: T, jf: F})
			return nil
		}
		afterLow := c.newLabel()
		c.emit(irInstr{kind: irJLT, k: n.StreamIDLow, jt: F, jf: afterLow})
		c.markLabel(afterLow)
		c.emit(irInstr{kind: irLoadAbs, off: offStreamID, size: 4})
		c.emit(irInstr{kind: irJGT, k: n.StreamIDHigh, jt: F, jf: T})
		return nil

	case KindNot:
		return compileNode(c, n.Child, F, T)

	case KindAnd:
		mid := c.newLabel()
		if err := compileNode(c, n.Left, mid, F); err != nil {
			return err
		}
		c.markLabel(mid)
		return compileNode(c, n.Right, T, F)

	case KindOr:
		mid := c.newLabel()
		if err := compileNode(c, n.Left, T, mid); err != nil {
			return err
		}
		c.markLabel(mid)
		return compileNode(c, n.Right, T, F)

	case KindGeneric:
		return compilePredicate(c, n.Pred, T, F)

	default:
		return fmt.Errorf("bpfengine: unknown node kind %d", n.Kind)
	}
}

func compilePredicate(c *codegen, p Predicate, T, F string) error {
	switch p.Kind {
	case PredEtherSrc:
		compileBytesEqual(c, offEtherSrc, p.MAC[:], T, F)
		return nil
	case PredEtherDst:
		compileBytesEqual(c, offEtherDst, p.MAC[:], T, F)
		return nil
	case PredIPSrc:
		compileEtherTypeGated(c, etherTypeIPv4, offIPv4Src, p.IP, T, F)
		return nil
	case PredIPDst:
		compileEtherTypeGated(c, etherTypeIPv4, offIPv4Dst, p.IP, T, F)
		return nil
	case PredIP6Src:
		compileEtherTypeGated(c, etherTypeIPv6, offIPv6Src, p.IP, T, F)
		return nil
	case PredIP6Dst:
		compileEtherTypeGated(c, etherTypeIPv6, offIPv6Dst, p.IP, T, F)
		return nil
	case PredLess, PredGreater:
		// The loaded length includes the pseudo-header, so the threshold
		// is shifted by the same amount (saturating on overflow).
		k := p.Num + pseudoHeaderLen
		if k < p.Num {
			k = ^uint32(0)
		}
		kind := irJLT
		if p.Kind == PredGreater {
			kind = irJGT
		}
		c.emit(irInstr{kind: irLoadLenExt})
		c.emit(irInstr{kind: kind, k: k, jt: T, jf: F})
		return nil
	case PredProto:
		c.emit(irInstr{kind: irLoadAbs, off: offIPv4Proto, size: 1})
		c.emit(irInstr{kind: irJEQ, k: uint32(p.Proto), jt: T, jf: F})
		return nil
	case PredPort:
		mid := c.newLabel()
		c.emit(irInstr{kind: irLoadAbs, off: offL4Sport, size: 2})
		c.emit(irInstr{kind: irJEQ, k: p.Num, jt: T, jf: mid})
		c.markLabel(mid)
		c.emit(irInstr{kind: irLoadAbs, off: offL4Dport, size: 2})
		c.emit(irInstr{kind: irJEQ, k: p.Num, jt: T, jf: F})
		return nil
	default:
		return fmt.Errorf("bpfengine: unsupported predicate kind %d", p.Kind)
	}
}

// compileEtherTypeGated requires the ethertype to match want before
// testing the address bytes, since IPv4/IPv6 addresses alias the same
// offsets depending on ethertype.
func compileEtherTypeGated(c *codegen, etherType uint32, addrOff uint32, want []byte, T, F string) {
	mid := c.newLabel()
	c.emit(irInstr{kind: irLoadAbs, off: offEtherType, size: 2})
	c.emit(irInstr{kind: irJEQ, k: etherType, jt: mid, jf: F})
	c.markLabel(mid)
	compileBytesEqual(c, addrOff, want, T, F)
}

// compileBytesEqual compares want (an arbitrary-length byte string,
// typically a MAC or IP address) against the evaluation buffer starting
// at off, in greedy 4/2/1-byte absolute loads (classic BPF has no wider
// load width).
func compileBytesEqual(c *codegen, off uint32, want []byte, T, F string) {
	type chunk struct {
		off  uint32
		size int
		k    uint32
	}
	var chunks []chunk
	i := 0
	for i < len(want) {
		remain := len(want) - i
		switch {
		case remain >= 4:
			chunks = append(chunks, chunk{off + uint32(i), 4, binary.BigEndian.Uint32(want[i : i+4])})
			i += 4
		case remain >= 2:
			chunks = append(chunks, chunk{off + uint32(i), 2, uint32(binary.BigEndian.Uint16(want[i : i+2]))})
			i += 2
		default:
			chunks = append(chunks, chunk{off + uint32(i), 1, uint32(want[i])})
			i++
		}
	}
	for idx, ch := range chunks {
		next := T
		last := idx == len(chunks)-1
		if !last {
			next = c.newLabel()
		}
		c.emit(irInstr{kind: irLoadAbs, off: ch.off, size: ch.size})
		c.emit(irInstr{kind: irJEQ, k: ch.k, jt: next, jf: F})
		if !last {
			c.markLabel(next)
		}
	}
}

// retPass/retFail are the final accept/reject return values: RET 0x40000
// on a match, RET 0 otherwise.
const (
	retPass uint32 = 0x40000
	retFail uint32 = 0
)

// lower converts the resolved IR into golang.org/x/net/bpf instructions.
func lower(c *codegen) ([]bpf.Instruction, error) {
	out := make([]bpf.Instruction, len(c.instrs))
	for i, in := range c.instrs {
		switch in.kind {
		case irLoadAbs:
			out[i] = bpf.LoadAbsolute{Off: in.off, Size: in.size}
		case irLoadLenExt:
			out[i] = bpf.LoadExtension{Num: bpf.ExtLen}
		case irJEQ, irJSET, irJLT, irJGT:
			jt, err := skip(c, i, in.jt)
			if err != nil {
				return nil, err
			}
			jf, err := skip(c, i, in.jf)
			if err != nil {
				return nil, err
			}
			cond := bpf.JumpEqual
			switch in.kind {
			case irJSET:
				cond = bpf.JumpBitsSet
			case irJLT:
				cond = bpf.JumpLessThan
			case irJGT:
				cond = bpf.JumpGreaterThan
			}
			out[i] = bpf.JumpIf{Cond: cond, Val: in.k, SkipTrue: jt, SkipFalse: jf}
		case irRetPass:
			out[i] = bpf.RetConstant{Val: retPass}
		case irRetFail:
			out[i] = bpf.RetConstant{Val: retFail}
		default:
			return nil, fmt.Errorf("bpfengine: unknown ir kind %d", in.kind)
		}
	}
	return out, nil
}

func skip(c *codegen, from int, label string) (uint8, error) {
	target, ok := c.labels[label]
	if !ok {
		return 0, fmt.Errorf("bpfengine: unresolved label %q", label)
	}
	d := target - (from + 1)
	if d < 0 || d > 255 {
		return 0, fmt.Errorf("%w: jump distance %d out of range for this filter", ErrInvalidFilter, d)
	}
	return uint8(d), nil
}
