package trafficspec

import "github.com/openperf/packetcore/control"

// HeaderKind identifies a header's field catalog.
type HeaderKind int

const (
	HeaderEthernet HeaderKind = iota
	HeaderVLAN
	HeaderMPLS
	HeaderIPv4
	HeaderIPv6
	HeaderTCP
	HeaderUDP
	HeaderCustom
)

func (k HeaderKind) String() string {
	switch k {
	case HeaderEthernet:
		return "ethernet"
	case HeaderVLAN:
		return "vlan"
	case HeaderMPLS:
		return "mpls"
	case HeaderIPv4:
		return "ipv4"
	case HeaderIPv6:
		return "ipv6"
	case HeaderTCP:
		return "tcp"
	case HeaderUDP:
		return "udp"
	case HeaderCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// MuxMode selects how a header's (or a packet's) modifiers combine.
type MuxMode int

const (
	MuxZip MuxMode = iota
	MuxCartesian
)

// fieldLayout locates one named field within a header's base bytes.
type fieldLayout struct {
	offset int
	width  int
}

// field catalogs, offsets grounded on parser/pcap.go's EthernetHeader/
// IPv4Header/IPv6Header and tcp/tcp.go's TCPHeader byte layouts.
var fieldCatalogs = map[HeaderKind]map[string]fieldLayout{
	HeaderEthernet: {
		"dst_mac":   {0, 6},
		"src_mac":   {6, 6},
		"ethertype": {12, 2},
	},
	HeaderVLAN: {
		"tci":       {0, 2},
		"ethertype": {2, 2},
	},
	HeaderMPLS: {
		"label_exp_bos": {0, 3},
		"ttl":           {3, 1},
	},
	HeaderIPv4: {
		"tos":      {1, 1},
		"id":       {4, 2},
		"ttl":      {8, 1},
		"protocol": {9, 1},
		"src":      {12, 4},
		"dst":      {16, 4},
	},
	HeaderIPv6: {
		"next_header": {6, 1},
		"hop_limit":   {7, 1},
		"src":         {8, 16},
		"dst":         {24, 16},
	},
	HeaderTCP: {
		"src_port": {0, 2},
		"dst_port": {2, 2},
		"seq":      {4, 4},
		"ack":      {8, 4},
		"window":   {14, 2},
	},
	HeaderUDP: {
		"src_port": {0, 2},
		"dst_port": {2, 2},
		"length":   {4, 2},
	},
}

// FieldModifier binds a Modifier to a named field of a HeaderConfig's
// base bytes. Offset is used only for HeaderCustom, whose field catalog
// is the caller's byte offsets rather than a known layout.
type FieldModifier struct {
	Field    string
	Offset   int
	Modifier Modifier
}

// HeaderConfig is the base bytes of one protocol header plus its
// modifier bindings and the multiplex mode combining them.
type HeaderConfig struct {
	Kind      HeaderKind
	Base      []byte
	Modifiers []FieldModifier
	Mux       MuxMode
}

func (h *HeaderConfig) layout(field string, offset int) (fieldLayout, error) {
	if h.Kind == HeaderCustom {
		return fieldLayout{offset: offset, width: -1}, nil
	}
	catalog, ok := fieldCatalogs[h.Kind]
	if !ok {
		return fieldLayout{}, control.Errorf(control.InvalidArgument, "no field catalog for header kind %v", h.Kind)
	}
	fl, ok := catalog[field]
	if !ok {
		return fieldLayout{}, control.Errorf(control.InvalidArgument, "header kind %v has no field %q", h.Kind, field)
	}
	return fl, nil
}

func etherTypeFor(next HeaderKind, doubleVLAN bool) [2]byte {
	switch next {
	case HeaderIPv4:
		return [2]byte{0x08, 0x00}
	case HeaderIPv6:
		return [2]byte{0x86, 0xDD}
	case HeaderVLAN:
		if doubleVLAN {
			return [2]byte{0x88, 0xA8} // 802.1ad QinQ
		}
		return [2]byte{0x81, 0x00}
	case HeaderMPLS:
		return [2]byte{0x88, 0x47} // MPLS unicast
	default:
		return [2]byte{0x00, 0x00}
	}
}

func ipProtocolFor(next HeaderKind) (byte, error) {
	switch next {
	case HeaderTCP:
		return 6, nil
	case HeaderUDP:
		return 17, nil
	case HeaderIPv4, HeaderIPv6:
		return 41, nil // IP-in-IP / IPv6 encapsulation
	default:
		return 0, control.Errorf(control.InvalidArgument, "header kind %v has no defined IP protocol number", next)
	}
}
