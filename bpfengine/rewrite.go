package bpfengine

import "fmt"

// ErrCannotSplit is returned when a mixed AND/OR expression cannot be
// reassociated into the "special AND/OR normal" splice form.
var ErrCannotSplit = fmt.Errorf("bpfengine: mixed AND/OR of special and normal terms cannot be split")

// category classifies a rewritten node for splicing purposes.
type category int

const (
	catNormal category = iota
	catSpecial
	catMixed
)

func classify(n *Node) category {
	switch n.Kind {
	case KindGeneric:
		return catNormal
	case KindValid, KindSignature:
		return catSpecial
	case KindNot:
		return classify(n.Child)
	case KindAnd, KindOr:
		lc, rc := classify(n.Left), classify(n.Right)
		switch {
		case lc == catSpecial && rc == catSpecial:
			return catSpecial
		case lc == catNormal && rc == catNormal:
			return catNormal
		default:
			return catMixed
		}
	default:
		return catNormal
	}
}

// splitSpecial normalizes n so that every binary node groups its special
// (metadata: valid/signature) terms away from its normal (byte-level)
// terms:
//   - eliminates double NOT
//   - pushes NOT through AND/OR via De Morgan when the child is binary
//   - reassociates every binary node so it has either all-special on the
//     left or all-normal on the right, preserving operator identity
//
// It returns ErrCannotSplit when a mixed AND/OR cannot be reassociated
// without interleaving special and normal terms at more than one point.
//
// splitSpecial is idempotent: splitSpecial(splitSpecial(e)) == splitSpecial(e).
func splitSpecial(n *Node) (*Node, error) {
	switch n.Kind {
	case KindGeneric, KindValid, KindSignature:
		return n, nil

	case KindNot:
		child, err := splitSpecial(n.Child)
		if err != nil {
			return nil, err
		}
		if child.Kind == KindNot {
			// Double NOT eliminated.
			return child.Child, nil
		}
		if child.Kind == KindAnd || child.Kind == KindOr {
			nl, err := splitSpecial(not(child.Left))
			if err != nil {
				return nil, err
			}
			nr, err := splitSpecial(not(child.Right))
			if err != nil {
				return nil, err
			}
			// De Morgan: not(l AND r) -> not(l) OR not(r); not(l OR r) -> not(l) AND not(r).
			opKind := KindOr
			if child.Kind == KindOr {
				opKind = KindAnd
			}
			return combine(opKind, nl, nr)
		}
		return not(child), nil

	case KindAnd, KindOr:
		l, err := splitSpecial(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := splitSpecial(n.Right)
		if err != nil {
			return nil, err
		}
		return combine(n.Kind, l, r)

	default:
		return n, nil
	}
}

// piece is one operand gathered while flattening a mixed reassociation:
// a node plus the category it was classified as.
type piece struct {
	node *Node
	cat  category
}

// combine builds op(l, r), reassociating through any Mixed operand that
// shares op's operator so the special and normal halves of every operand
// collapse into at most one special cluster and one normal cluster.
func combine(op Kind, l, r *Node) (*Node, error) {
	pieces, err := gather(op, l)
	if err != nil {
		return nil, err
	}
	rp, err := gather(op, r)
	if err != nil {
		return nil, err
	}
	pieces = append(pieces, rp...)

	var special, normal *Node
	mk := and
	if op == KindOr {
		mk = or
	}
	for _, p := range pieces {
		switch p.cat {
		case catSpecial:
			if special == nil {
				special = p.node
			} else {
				special = mk(special, p.node)
			}
		case catNormal:
			if normal == nil {
				normal = p.node
			} else {
				normal = mk(normal, p.node)
			}
		default:
			// A catMixed piece reaching here means two incompatible
			// operators were nested (gather only returns catMixed when
			// it could not flatten further).
			return nil, ErrCannotSplit
		}
	}

	switch {
	case special != nil && normal != nil:
		return &Node{Kind: op, Left: special, Right: normal}, nil
	case special != nil:
		return special, nil
	case normal != nil:
		return normal, nil
	default:
		return nil, ErrCannotSplit
	}
}

// gather flattens n into the pieces that combine under operator op: if n
// is itself Mixed with the same internal operator, its special and
// normal halves are returned separately; if n is pure special/normal, it
// is returned as a single piece; otherwise (a Mixed node with a
// different internal operator) it cannot be flattened further and is
// returned as a single catMixed piece, which causes combine to fail.
func gather(op Kind, n *Node) ([]piece, error) {
	cat := classify(n)
	if cat != catMixed {
		return []piece{{node: n, cat: cat}}, nil
	}
	if n.Kind != op {
		return []piece{{node: n, cat: catMixed}}, nil
	}
	// n is Mixed with the same operator as op: by construction of
	// combine, Mixed nodes always have Left=special cluster,
	// Right=normal cluster.
	return []piece{
		{node: n.Left, cat: catSpecial},
		{node: n.Right, cat: catNormal},
	}, nil
}

// computeFilterFlags walks a rewritten (post split_special) tree and
// reports which sink features the filter depends on as a FilterFlags
// bitset.
func computeFilterFlags(n *Node) FilterFlags {
	var f FilterFlags
	var walk func(*Node)
	walk = func(n *Node) {
		switch n.Kind {
		case KindGeneric:
			f |= FlagBPF
		case KindValid:
			f |= validToFlags(n.Valid)
		case KindSignature:
			f |= FlagSignature
			if n.HasStreamIDRange {
				f |= FlagSignatureStreamID
			}
		case KindNot:
			f |= FlagNOT
			walk(n.Child)
		case KindAnd:
			f |= FlagAND
			walk(n.Left)
			walk(n.Right)
		case KindOr:
			f |= FlagOR
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(n)
	return f
}

func validToFlags(m ValidMask) FilterFlags {
	var f FilterFlags
	if m&ValidFCS != 0 {
		f |= FlagFCSErr
	}
	if m&ValidIPChecksum != 0 {
		f |= FlagIPChecksumErr
	}
	if m&ValidTCPChecksum != 0 {
		f |= FlagTCPChecksumErr
	}
	if m&ValidUDPChecksum != 0 {
		f |= FlagUDPChecksumErr
	}
	if m&ValidICMPChecksum != 0 {
		f |= FlagICMPChecksumErr
	}
	if m&ValidPRBS != 0 {
		f |= FlagPRBSErr
	}
	return f
}

// FastPath identifies one of a handful of hard-coded filter
// specializations that skip the general bytecode VM entirely.
type FastPath int

const (
	FastPathNone FastPath = iota
	// FastPathSignatureOnly is the bare `signature` filter.
	FastPathSignatureOnly
	// FastPathNotSignatureOnly is the bare `not signature` filter.
	FastPathNotSignatureOnly
	// FastPathNotSigAndBPF is `not signature and <normal>`: the
	// signature check short-circuits before the BPF program runs.
	FastPathNotSigAndBPF
)

func detectFastPath(n *Node) FastPath {
	if n.Kind == KindSignature && !n.HasStreamIDRange {
		return FastPathSignatureOnly
	}
	if n.Kind == KindNot && n.Child.Kind == KindSignature && !n.Child.HasStreamIDRange {
		return FastPathNotSignatureOnly
	}
	if n.Kind == KindAnd {
		if isBareNotSignature(n.Left) && classify(n.Right) == catNormal {
			return FastPathNotSigAndBPF
		}
		if isBareNotSignature(n.Right) && classify(n.Left) == catNormal {
			return FastPathNotSigAndBPF
		}
	}
	return FastPathNone
}

func isBareNotSignature(n *Node) bool {
	return n.Kind == KindNot && n.Child.Kind == KindSignature && !n.Child.HasStreamIDRange
}
