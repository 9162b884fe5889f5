package pktio

// PacketTypeFlags is a 32-bit bitfield partitioned into seven 4-bit lanes:
// ethernet, ip, protocol, tunnel, inner_ethernet, inner_ip, inner_protocol
// (lanes 0..6, least-significant first), plain bit arithmetic instead of
// a tagged-union type per lane.
type PacketTypeFlags uint32

const laneBits = 4
const laneMask PacketTypeFlags = 0xF

// Lane identifies one of the seven 4-bit lanes.
type Lane uint

const (
	LaneEthernet Lane = iota
	LaneIP
	LaneProtocol
	LaneTunnel
	LaneInnerEthernet
	LaneInnerIP
	LaneInnerProtocol
	laneCount
)

func (f PacketTypeFlags) shift(l Lane) uint { return uint(l) * laneBits }

// Lane extracts the 4-bit variant value for lane l.
func (f PacketTypeFlags) Lane(l Lane) PacketTypeFlags {
	return (f >> f.shift(l)) & laneMask
}

// WithLane returns f with lane l set to v (v must fit in 4 bits).
func (f PacketTypeFlags) WithLane(l Lane, v PacketTypeFlags) PacketTypeFlags {
	shift := f.shift(l)
	return (f &^ (laneMask << shift)) | ((v & laneMask) << shift)
}

// Ethernet lane variants.
const (
	EthernetNone PacketTypeFlags = iota
	EthernetEther
	EthernetVlan
	EthernetQinQ
	EthernetMpls
)

// IP lane variants.
const (
	IPNone PacketTypeFlags = iota
	IPv4
	IPv4Ext
	IPv6
	IPv6Ext
)

// Protocol lane variants.
const (
	ProtocolNone PacketTypeFlags = iota
	ProtocolTCP
	ProtocolUDP
	ProtocolICMP
	ProtocolSCTP
	ProtocolIGMP
)

func (f PacketTypeFlags) Ethernet() PacketTypeFlags      { return f.Lane(LaneEthernet) }
func (f PacketTypeFlags) IP() PacketTypeFlags            { return f.Lane(LaneIP) }
func (f PacketTypeFlags) Protocol() PacketTypeFlags      { return f.Lane(LaneProtocol) }
func (f PacketTypeFlags) Tunnel() PacketTypeFlags        { return f.Lane(LaneTunnel) }
func (f PacketTypeFlags) InnerEthernet() PacketTypeFlags { return f.Lane(LaneInnerEthernet) }
func (f PacketTypeFlags) InnerIP() PacketTypeFlags       { return f.Lane(LaneInnerIP) }
func (f PacketTypeFlags) InnerProtocol() PacketTypeFlags { return f.Lane(LaneInnerProtocol) }

// HeaderLengths packs layer2/layer3/layer4 header lengths plus a TSO
// segment size into a single uint64:
// layer2: 7 bits, layer3: 9 bits, layer4: 8 bits, tso_segsz: 16 bits.
type HeaderLengths uint64

const (
	hlLayer2Bits = 7
	hlLayer3Bits = 9
	hlLayer4Bits = 8

	hlLayer2Shift = 0
	hlLayer3Shift = hlLayer2Shift + hlLayer2Bits
	hlLayer4Shift = hlLayer3Shift + hlLayer3Bits
	hlTsoShift    = hlLayer4Shift + hlLayer4Bits

	hlLayer2Mask = (1 << hlLayer2Bits) - 1
	hlLayer3Mask = (1 << hlLayer3Bits) - 1
	hlLayer4Mask = (1 << hlLayer4Bits) - 1
	hlTsoMask    = 0xFFFF
)

// NewHeaderLengths packs the four fields, truncating any that overflow
// their lane width.
func NewHeaderLengths(layer2, layer3, layer4 uint16, tsoSegsz uint16) HeaderLengths {
	var h HeaderLengths
	h |= HeaderLengths(layer2&hlLayer2Mask) << hlLayer2Shift
	h |= HeaderLengths(layer3&hlLayer3Mask) << hlLayer3Shift
	h |= HeaderLengths(layer4&hlLayer4Mask) << hlLayer4Shift
	h |= HeaderLengths(tsoSegsz&hlTsoMask) << hlTsoShift
	return h
}

func (h HeaderLengths) Layer2() uint16 { return uint16(h>>hlLayer2Shift) & hlLayer2Mask }
func (h HeaderLengths) Layer3() uint16 { return uint16(h>>hlLayer3Shift) & hlLayer3Mask }
func (h HeaderLengths) Layer4() uint16 { return uint16(h>>hlLayer4Shift) & hlLayer4Mask }
func (h HeaderLengths) TSOSegSz() uint16 {
	return uint16(h>>hlTsoShift) & hlTsoMask
}

// Total returns the sum of the three header layer lengths (excludes
// tso_segsz, which is not a byte length).
func (h HeaderLengths) Total() uint16 {
	return h.Layer2() + h.Layer3() + h.Layer4()
}
