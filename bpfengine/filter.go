package bpfengine

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/net/bpf"

	"github.com/openperf/packetcore/pktio"
)

// compiledFilter is the immutable program installed by Parse/SetProg. A
// fastPath of fastPathAlwaysPass (with no vm) means "always pass" — the
// program a freshly constructed Filter starts with.
type compiledFilter struct {
	expr     string
	flags    FilterFlags
	fastPath FastPath
	vm       *bpf.VM
	root     *Node
	jit      bool // whether JIT was requested; always interpreted, no JIT backend exists
}

// Filter is a compiled BPF program shared by the analyzer and capture
// cores. It owns its program, compiled closure and filter flags for its
// lifetime, and is safe for concurrent Match/burst calls from multiple
// I/O workers: the only mutation is an atomic pointer swap on
// (re)compile, matching the handoff pattern used elsewhere in this
// module (analyzer.Sink, capturesink.Sink).
type Filter struct {
	state atomic.Pointer[compiledFilter]
}

// New returns a Filter compiled to an always-pass specialization.
func New() *Filter {
	f := &Filter{}
	f.state.Store(&compiledFilter{expr: "", fastPath: fastPathAlwaysPass})
	return f
}

const fastPathAlwaysPass FastPath = -1

// Parse (re)compiles expr and installs it atomically. linkType mirrors
// a libpcap-style link-type parameter; this implementation's byte-offset
// layout assumes Ethernet framing regardless of its value, so it is
// accepted but not otherwise consulted.
func (f *Filter) Parse(expr string, linkType int) error {
	root, err := Parse(expr)
	if err != nil {
		return err
	}
	rewritten, err := splitSpecial(root)
	if err != nil {
		return err
	}
	flags := computeFilterFlags(rewritten)
	fp := detectFastPath(rewritten)

	cg, err := compileTree(rewritten)
	if err != nil {
		return err
	}
	insns, err := lower(cg)
	if err != nil {
		return err
	}
	return f.SetProg(insns, flags, fp, rewritten, expr, false)
}

// SetProg validates and installs a raw instruction program: it validates
// the program and would install a JIT backend if one were available;
// none exists here, so wantJIT only affects the reported jit flag, not
// execution.
func (f *Filter) SetProg(insns []bpf.Instruction, flags FilterFlags, fp FastPath, root *Node, expr string, wantJIT bool) error {
	if err := validateProg(insns); err != nil {
		return err
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	f.state.Store(&compiledFilter{
		expr:     expr,
		flags:    flags,
		fastPath: fp,
		vm:       vm,
		root:     root,
		jit:      wantJIT,
	})
	return nil
}

func validateProg(insns []bpf.Instruction) error {
	if len(insns) == 0 {
		return fmt.Errorf("%w: empty program", ErrInvalidFilter)
	}
	return nil
}

// Flags reports the currently installed FilterFlags.
func (f *Filter) Flags() FilterFlags { return f.state.Load().flags }

// FastPath reports which hard-coded specialization (if any) is active.
func (f *Filter) FastPath() FastPath { return f.state.Load().fastPath }

// RequiredFeatures reports which pktio.FeatureFlags the installed
// program depends on, so a sink can enable exactly the decode features
// its active filters need.
func (f *Filter) RequiredFeatures() pktio.FeatureFlags {
	cf := f.state.Load()
	var out pktio.FeatureFlags
	if cf.flags.Has(FlagSignature) {
		out |= pktio.FeatureSignatureDecode
	}
	if cf.flags.Has(FlagPRBSErr) {
		out |= pktio.FeatureSignatureDecode | pktio.FeaturePRBSErrorDetect
	}
	if cf.flags.Has(FlagBPF) || cf.flags != 0 {
		out |= pktio.FeaturePacketTypeDecode
	}
	return out
}

// Match evaluates the installed program against one packet.
func (f *Filter) Match(buf pktio.Buffer) bool {
	return matchOne(f.state.Load(), buf)
}

func matchOne(cf *compiledFilter, buf pktio.Buffer) bool {
	switch cf.fastPath {
	case fastPathAlwaysPass:
		return true
	case FastPathSignatureOnly:
		_, ok := buf.SignatureStreamID()
		return ok
	case FastPathNotSignatureOnly:
		_, ok := buf.SignatureStreamID()
		return !ok
	case FastPathNotSigAndBPF:
		if _, ok := buf.SignatureStreamID(); ok {
			// Signature present: short-circuit before running BPF.
			return false
		}
		return runVM(cf, buf)
	default:
		return runVM(cf, buf)
	}
}

// stackEvalBufSize covers the vast majority of packets (standard
// Ethernet MTU, 1500 bytes) without a heap allocation per packet.
const stackEvalBufSize = 2048

func runVM(cf *compiledFilter, buf pktio.Buffer) bool {
	data := buf.Data(0)
	total := pseudoHeaderLen + len(data)

	var stack [stackEvalBufSize]byte
	eval := stack[:0]
	if total <= stackEvalBufSize {
		eval = stack[:total]
	} else {
		eval = make([]byte, total)
	}

	streamID, hasSig := buf.SignatureStreamID()
	eval[offPktflags] = BuildPktflags(
		buf.FCSError(), buf.IPChecksumError(), buf.TCPChecksumError(),
		buf.UDPChecksumError(), false, prbsErrorBit(buf), hasSig)
	eval[1], eval[2], eval[3] = 0, 0, 0
	putBE32(eval[offStreamID:offStreamID+4], streamID)
	copy(eval[pseudoHeaderLen:], data)

	out, err := cf.vm.Run(eval)
	if err != nil {
		return false
	}
	return out > 0
}

func prbsErrorBit(buf pktio.Buffer) bool {
	n, ok := buf.PRBSBitErrors()
	return ok && n > 0
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// --- burst API ---------------------------------------------------------

// FilterBurst copies passing packets into out, returning the count kept.
func (f *Filter) FilterBurst(in []pktio.Buffer, out []pktio.Buffer) int {
	cf := f.state.Load()
	n := 0
	for _, b := range in {
		if matchOne(cf, b) {
			out[n] = b
			n++
		}
	}
	return n
}

// ExecBurst evaluates every packet, writing 1/0 into res, and returns n.
func (f *Filter) ExecBurst(in []pktio.Buffer, res []uint64) int {
	cf := f.state.Load()
	for i, b := range in {
		if matchOne(cf, b) {
			res[i] = 1
		} else {
			res[i] = 0
		}
	}
	return len(in)
}

// FindNext returns the first passing index at or after offset, or
// len(in) if none pass.
func (f *Filter) FindNext(in []pktio.Buffer, offset int) int {
	cf := f.state.Load()
	for i := offset; i < len(in); i++ {
		if matchOne(cf, in[i]) {
			return i
		}
	}
	return len(in)
}
