package simdcopy

import "unsafe"

// uintptrOf returns the address of a slice's backing array, used only to
// compute alignment for the head-block trick in copyLarge. parser/pcap.go
// reinterprets packet bytes through unsafe.Pointer in exactly this way
// for header overlay structs; this is the same pattern applied to
// alignment arithmetic instead of struct overlay.
func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
