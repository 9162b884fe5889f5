// Package bpfengine implements the shared filter/trigger language used by
// the analyzer and capture cores: an extended libpcap syntax with
// signature and valid {fcs|chksum|prbs} terms, rewritten to separate
// metadata predicates from byte predicates, compiled to BPF bytecode via
// golang.org/x/net/bpf, and exposed through a burst-oriented API.
//
// The AST is a tagged-variant node type walked by match-based functions
// (splitSpecial, computeFilterFlags, compile) rather than an
// inheritance/virtual-dispatch hierarchy: rewrites return fresh trees,
// ownership is linear.
package bpfengine

import "fmt"

// Kind tags an AST node.
type Kind int

const (
	KindGeneric Kind = iota
	KindValid
	KindSignature
	KindNot
	KindAnd
	KindOr
)

// PredKind enumerates the libpcap-subset byte predicates this engine can
// compile directly to BPF bytecode: mac/ip/ip6 src+dst, length
// predicates, bare protocol keywords and port, a representative subset
// rather than the full libpcap grammar (see DESIGN.md).
type PredKind int

const (
	PredEtherSrc PredKind = iota
	PredEtherDst
	PredIPSrc
	PredIPDst
	PredIP6Src
	PredIP6Dst
	PredLess
	PredGreater
	PredProto
	PredPort
)

// IPProto identifies a transport protocol for PredProto.
type IPProto uint8

const (
	ProtoTCP  IPProto = 6
	ProtoUDP  IPProto = 17
	ProtoICMP IPProto = 1
)

// Predicate is a single libpcap-subset byte-level test.
type Predicate struct {
	Kind  PredKind
	MAC   [6]byte
	IP    []byte // 4 bytes (IPv4) or 16 bytes (IPv6)
	Num   uint32 // length threshold or port number
	Proto IPProto
}

func (p Predicate) String() string {
	switch p.Kind {
	case PredEtherSrc:
		return fmt.Sprintf("ether src %x", p.MAC)
	case PredEtherDst:
		return fmt.Sprintf("ether dst %x", p.MAC)
	case PredIPSrc:
		return fmt.Sprintf("ip src %v", []byte(p.IP))
	case PredIPDst:
		return fmt.Sprintf("ip dst %v", []byte(p.IP))
	case PredIP6Src:
		return fmt.Sprintf("ip6 src %v", []byte(p.IP))
	case PredIP6Dst:
		return fmt.Sprintf("ip6 dst %v", []byte(p.IP))
	case PredLess:
		return fmt.Sprintf("less %d", p.Num)
	case PredGreater:
		return fmt.Sprintf("greater %d", p.Num)
	case PredProto:
		return fmt.Sprintf("proto %d", p.Proto)
	case PredPort:
		return fmt.Sprintf("port %d", p.Num)
	default:
		return "?"
	}
}

// ValidMask identifies which PKTFLAGS bits a `valid` term checks.
type ValidMask uint8

const (
	ValidFCS ValidMask = 1 << iota
	ValidIPChecksum
	ValidTCPChecksum
	ValidUDPChecksum
	ValidICMPChecksum
	ValidPRBS
)

// ValidChksum is the mask used by the `valid chksum` term: any of the
// four checksum-error bits.
const ValidChksum = ValidIPChecksum | ValidTCPChecksum | ValidUDPChecksum | ValidICMPChecksum

// Node is a tagged-variant AST node.
type Node struct {
	Kind Kind

	// KindGeneric
	Pred Predicate

	// KindValid
	Valid ValidMask

	// KindSignature
	HasStreamIDRange bool
	StreamIDLow      uint32
	StreamIDHigh     uint32

	// KindNot
	Child *Node

	// KindAnd, KindOr
	Left, Right *Node
}

func generic(p Predicate) *Node { return &Node{Kind: KindGeneric, Pred: p} }
func valid(mask ValidMask) *Node { return &Node{Kind: KindValid, Valid: mask} }
func signature() *Node          { return &Node{Kind: KindSignature} }
func signatureRange(lo, hi uint32) *Node {
	return &Node{Kind: KindSignature, HasStreamIDRange: true, StreamIDLow: lo, StreamIDHigh: hi}
}
func not(n *Node) *Node       { return &Node{Kind: KindNot, Child: n} }
func and(l, r *Node) *Node    { return &Node{Kind: KindAnd, Left: l, Right: r} }
func or(l, r *Node) *Node     { return &Node{Kind: KindOr, Left: l, Right: r} }

// isSpecialLeaf reports whether n is a ValidMatch or SignatureMatch node,
// i.e. HasSpecial restricted to a single node rather than a whole tree.
func (n *Node) isSpecialLeaf() bool {
	return n.Kind == KindValid || n.Kind == KindSignature
}

// HasSpecial reports whether n or any descendant is a special (Valid or
// Signature) term.
func (n *Node) HasSpecial() bool {
	switch n.Kind {
	case KindValid, KindSignature:
		return true
	case KindNot:
		return n.Child.HasSpecial()
	case KindAnd, KindOr:
		return n.Left.HasSpecial() || n.Right.HasSpecial()
	default:
		return false
	}
}

// FilterFlags is the bitset reported for a compiled filter, used both to
// populate the PKTFLAGS pseudo-register and to report which sink
// features and BPF fast paths a filter depends on.
type FilterFlags uint32

const (
	FlagFCSErr FilterFlags = 1 << iota
	FlagIPChecksumErr
	FlagTCPChecksumErr
	FlagUDPChecksumErr
	FlagICMPChecksumErr
	FlagPRBSErr
	FlagSignature
	FlagSignatureStreamID
	FlagAND
	FlagOR
	FlagNOT
	FlagBPF
)

func (f FilterFlags) Has(bit FilterFlags) bool { return f&bit != 0 }

// pseudoRegisterBits is the subset of FilterFlags (bits 0..6) that also
// populate the PKTFLAGS pseudo-register evaluated per packet: fcs,
// ip_chksum, tcp_chksum, udp_chksum, icmp_chksum, prbs, and signature
// error bits.
const pseudoRegisterBits = FlagFCSErr | FlagIPChecksumErr | FlagTCPChecksumErr |
	FlagUDPChecksumErr | FlagICMPChecksumErr | FlagPRBSErr | FlagSignature
