package trafficspec

import (
	"github.com/openperf/packetcore/control"
	"github.com/openperf/packetcore/pktio"
)

// Container is a header config's byte-level expansion: one fully
// instantiated copy of the header's base bytes per combination of its
// modifiers.
type Container struct {
	Headers [][]byte
}

// Len reports the container's instance count.
func (c *Container) Len() int { return len(c.Headers) }

// ExpandHeader expands a single HeaderConfig into a Container by
// combining its modifiers with its Mux: zip cycles each modifier's range
// up to lcm(lengths), cartesian enumerates the full cross product.
func ExpandHeader(hc *HeaderConfig) (*Container, error) {
	if len(hc.Modifiers) == 0 {
		cp := make([]byte, len(hc.Base))
		copy(cp, hc.Base)
		return &Container{Headers: [][]byte{cp}}, nil
	}

	ranges := make([][][]byte, len(hc.Modifiers))
	for i, fm := range hc.Modifiers {
		vals, err := fm.Modifier.Expand()
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			return nil, control.Errorf(control.InvalidArgument, "modifier for field %q expands to zero values", fm.Field)
		}
		ranges[i] = vals
	}

	var size int
	switch hc.Mux {
	case MuxZip:
		size = 1
		for _, r := range ranges {
			size = lcm(size, len(r))
		}
	case MuxCartesian:
		size = 1
		for _, r := range ranges {
			size *= len(r)
		}
	default:
		return nil, control.Errorf(control.InvalidArgument, "unknown mux mode %v", hc.Mux)
	}

	// radix[i] is each modifier's contribution to a cartesian digit
	// index; unused (left 1) for zip, which instead just cycles.
	radix := make([]int, len(ranges))
	for i := range radix {
		radix[i] = 1
	}
	if hc.Mux == MuxCartesian {
		acc := 1
		for i := len(ranges) - 1; i >= 0; i-- {
			radix[i] = acc
			acc *= len(ranges[i])
		}
	}

	headers := make([][]byte, size)
	for idx := 0; idx < size; idx++ {
		cp := make([]byte, len(hc.Base))
		copy(cp, hc.Base)
		for m, fm := range hc.Modifiers {
			var sub int
			if hc.Mux == MuxZip {
				sub = idx % len(ranges[m])
			} else {
				sub = (idx / radix[m]) % len(ranges[m])
			}
			fl, err := hc.layout(fm.Field, fm.Offset)
			if err != nil {
				return nil, err
			}
			width := fl.width
			if width < 0 {
				width = len(ranges[m][sub])
			}
			if fl.offset+width > len(cp) {
				return nil, control.Errorf(control.InvalidArgument, "field %q write exceeds header base length", fm.Field)
			}
			copy(cp[fl.offset:fl.offset+width], ranges[m][sub])
		}
		headers[idx] = cp
	}
	return &Container{Headers: headers}, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}

// PacketTemplate is the frozen expansion of an ordered list of header
// configs: per packet index, the concatenated layer2+3+4 bytes, its
// header lengths and packet-type flags, and (for TCP/UDP over IP) the
// precomputed pseudo-header checksum accumulator so the generator's hot
// path only has to fold in the payload length.
type PacketTemplate struct {
	Data            [][]byte
	HeaderLengths   []pktio.HeaderLengths
	Flags           []pktio.PacketTypeFlags
	PseudoChecksums []uint32
}

// Size returns the template's packet count.
func (t *PacketTemplate) Size() int { return len(t.Data) }

// BuildPacketTemplate combines per-header containers (already expanded
// and context-fixed-up) with a packet-level mux the same way
// ExpandHeader combines per-field modifier ranges: each header is a
// mixed-radix digit, radix equal to its container length.
func BuildPacketTemplate(configs []*HeaderConfig, mux MuxMode) (*PacketTemplate, error) {
	if len(configs) == 0 {
		return nil, control.Errorf(control.InvalidArgument, "packet template requires at least one header config")
	}
	containers := make([]*Container, len(configs))
	for i, hc := range configs {
		c, err := ExpandHeader(hc)
		if err != nil {
			return nil, err
		}
		containers[i] = c
	}

	var size int
	switch mux {
	case MuxZip:
		size = 1
		for _, c := range containers {
			size = lcm(size, c.Len())
		}
	case MuxCartesian:
		size = 1
		for _, c := range containers {
			size *= c.Len()
		}
	default:
		return nil, control.Errorf(control.InvalidArgument, "unknown packet mux mode %v", mux)
	}

	radix := make([]int, len(containers))
	if mux == MuxCartesian {
		acc := 1
		for i := len(containers) - 1; i >= 0; i-- {
			radix[i] = acc
			acc *= containers[i].Len()
		}
	}

	t := &PacketTemplate{
		Data:            make([][]byte, size),
		HeaderLengths:   make([]pktio.HeaderLengths, size),
		Flags:           make([]pktio.PacketTypeFlags, size),
		PseudoChecksums: make([]uint32, size),
	}

	for idx := 0; idx < size; idx++ {
		var data []byte
		var l2, l3, l4 uint16
		var flags pktio.PacketTypeFlags
		var ipSrc, ipDst []byte
		var ipIsV6 bool
		var l4Kind HeaderKind

		for h, c := range containers {
			var sub int
			if mux == MuxZip {
				sub = idx % c.Len()
			} else {
				sub = (idx / radix[h]) % c.Len()
			}
			instance := c.Headers[sub]
			data = append(data, instance...)

			switch configs[h].Kind {
			case HeaderEthernet:
				l2 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneEthernet, pktio.EthernetEther)
			case HeaderVLAN:
				l2 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneEthernet, pktio.EthernetVlan)
			case HeaderMPLS:
				l2 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneEthernet, pktio.EthernetMpls)
			case HeaderIPv4:
				l3 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneIP, pktio.IPv4)
				ipSrc, ipDst = instance[12:16], instance[16:20]
			case HeaderIPv6:
				l3 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneIP, pktio.IPv6)
				ipSrc, ipDst, ipIsV6 = instance[8:24], instance[24:40], true
			case HeaderTCP:
				l4 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneProtocol, pktio.ProtocolTCP)
				l4Kind = HeaderTCP
			case HeaderUDP:
				l4 += uint16(len(instance))
				flags = flags.WithLane(pktio.LaneProtocol, pktio.ProtocolUDP)
				l4Kind = HeaderUDP
			case HeaderCustom:
				l2 += uint16(len(instance))
			}
		}

		t.Data[idx] = data
		t.HeaderLengths[idx] = pktio.NewHeaderLengths(l2, l3, l4, 0)
		t.Flags[idx] = flags
		if ipSrc != nil && (l4Kind == HeaderTCP || l4Kind == HeaderUDP) {
			proto := byte(6)
			if l4Kind == HeaderUDP {
				proto = 17
			}
			if ipIsV6 {
				t.PseudoChecksums[idx] = pseudoHeaderSumIPv6(ipSrc, ipDst, proto)
			} else {
				t.PseudoChecksums[idx] = pseudoHeaderSumIPv4(ipSrc, ipDst, proto)
			}
		}
	}
	return t, nil
}
