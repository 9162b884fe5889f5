package trafficspec

import "github.com/openperf/packetcore/control"

// ContextFixup walks configs tail to head and writes each prev header's
// next-header field from next's identity: ethertype, ip.protocol,
// ipv6.next_header, vlan.ethertype. A double-stacked VLAN pair sets the
// QinQ ethertype on the outer ethernet frame; an MPLS chain sets
// bottom_of_stack on its last label only.
func ContextFixup(configs []*HeaderConfig) error {
	for i := len(configs) - 2; i >= 0; i-- {
		doubleVLAN := configs[i].Kind == HeaderEthernet &&
			configs[i+1].Kind == HeaderVLAN &&
			i+2 < len(configs) && configs[i+2].Kind == HeaderVLAN
		if err := fixupPair(configs[i], configs[i+1], doubleVLAN); err != nil {
			return err
		}
	}
	if len(configs) > 0 {
		if err := fixupMPLSChain(configs); err != nil {
			return err
		}
	}
	return nil
}

func fixupPair(prev, next *HeaderConfig, doubleVLAN bool) error {
	switch prev.Kind {
	case HeaderEthernet, HeaderVLAN:
		et := etherTypeFor(next.Kind, doubleVLAN)
		return writeField(prev, "ethertype", et[:])
	case HeaderIPv4:
		proto, err := ipProtocolFor(next.Kind)
		if err != nil {
			return err
		}
		return writeField(prev, "protocol", []byte{proto})
	case HeaderIPv6:
		proto, err := ipProtocolFor(next.Kind)
		if err != nil {
			return err
		}
		return writeField(prev, "next_header", []byte{proto})
	case HeaderMPLS:
		// bottom_of_stack is handled in fixupMPLSChain once the whole
		// chain is known, since it depends on whether this is the last
		// label rather than on the immediately adjacent header alone.
		return nil
	default:
		return nil
	}
}

func fixupMPLSChain(configs []*HeaderConfig) error {
	for i, c := range configs {
		if c.Kind != HeaderMPLS {
			continue
		}
		if len(c.Base) < 3 {
			return control.Errorf(control.InvalidArgument, "mpls base too short for bottom_of_stack bit")
		}
		last := i == len(configs)-1 || configs[i+1].Kind != HeaderMPLS
		if last {
			c.Base[2] |= 0x01
		} else {
			c.Base[2] &^= 0x01
		}
	}
	return nil
}

func writeField(hc *HeaderConfig, field string, value []byte) error {
	fl, err := hc.layout(field, 0)
	if err != nil {
		return err
	}
	if fl.offset+len(value) > len(hc.Base) {
		return control.Errorf(control.InvalidArgument, "header base too short to write field %q", field)
	}
	copy(hc.Base[fl.offset:fl.offset+len(value)], value)
	return nil
}
