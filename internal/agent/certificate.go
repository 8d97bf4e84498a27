package agent

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Certificate is a decoded replica certificate. Agents check the
// signature with a Verifier before parsing.
type Certificate struct {
	Tree       HashTree
	Signature  []byte
	Delegation *Delegation
}

// Delegation binds a subnet certificate to the root key.
type Delegation struct {
	SubnetID    []byte `cbor:"subnet_id"`
	Certificate []byte `cbor:"certificate"`
}

type certificateWire struct {
	Tree       cbor.RawMessage `cbor:"tree"`
	Signature  []byte          `cbor:"signature"`
	Delegation *Delegation     `cbor:"delegation,omitempty"`
}

// ParseCertificate decodes a CBOR certificate.
func ParseCertificate(data []byte) (*Certificate, error) {
	var w certificateWire
	if err := unmarshalCBOR(data, &w); err != nil {
		return nil, fmt.Errorf("decode certificate: %w", err)
	}
	tree, err := parseHashTree(w.Tree, 0)
	if err != nil {
		return nil, fmt.Errorf("decode certificate tree: %w", err)
	}
	return &Certificate{Tree: tree, Signature: w.Signature, Delegation: w.Delegation}, nil
}

// Lookup finds the leaf at path.
func (c *Certificate) Lookup(path ...[]byte) ([]byte, LookupStatus) {
	return c.Tree.Lookup(path...)
}

// Hash tree node tags.
const (
	nodeEmpty    = 0
	nodeFork     = 1
	nodeLabeled  = 2
	nodeLeaf     = 3
	nodePruned   = 4
	maxTreeDepth = 128
)

// HashTree is a node of a certificate hash tree.
type HashTree struct {
	Kind  int
	Label []byte
	Value []byte // leaf value or pruned digest
	Left  *HashTree
	Right *HashTree
}

// LookupStatus is the outcome of a path lookup.
type LookupStatus int

const (
	LookupFound LookupStatus = iota
	// LookupAbsent means the tree proves the path does not exist.
	LookupAbsent
	// LookupUnknown means the relevant branch was pruned.
	LookupUnknown
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupAbsent:
		return "absent"
	}
	return "unknown"
}

func parseHashTree(raw cbor.RawMessage, depth int) (HashTree, error) {
	if depth > maxTreeDepth {
		return HashTree{}, errors.New("hash tree too deep")
	}
	var items []cbor.RawMessage
	if err := decMode.Unmarshal(raw, &items); err != nil {
		return HashTree{}, err
	}
	if len(items) == 0 {
		return HashTree{}, errors.New("empty hash tree node")
	}
	var tag int
	if err := decMode.Unmarshal(items[0], &tag); err != nil {
		return HashTree{}, err
	}
	want := map[int]int{nodeEmpty: 1, nodeFork: 3, nodeLabeled: 3, nodeLeaf: 2, nodePruned: 2}
	n, ok := want[tag]
	if !ok {
		return HashTree{}, fmt.Errorf("unknown hash tree tag %d", tag)
	}
	if len(items) != n {
		return HashTree{}, fmt.Errorf("hash tree tag %d expects %d items, got %d", tag, n, len(items))
	}
	t := HashTree{Kind: tag}
	switch tag {
	case nodeFork:
		l, err := parseHashTree(items[1], depth+1)
		if err != nil {
			return t, err
		}
		r, err := parseHashTree(items[2], depth+1)
		if err != nil {
			return t, err
		}
		t.Left, t.Right = &l, &r
	case nodeLabeled:
		if err := decMode.Unmarshal(items[1], &t.Label); err != nil {
			return t, err
		}
		sub, err := parseHashTree(items[2], depth+1)
		if err != nil {
			return t, err
		}
		t.Left = &sub
	case nodeLeaf, nodePruned:
		if err := decMode.Unmarshal(items[1], &t.Value); err != nil {
			return t, err
		}
	}
	return t, nil
}

// Lookup walks labels from the root of t.
func (t HashTree) Lookup(path ...[]byte) ([]byte, LookupStatus) {
	node := t
	for _, label := range path {
		next, status := node.child(label)
		if status != LookupFound {
			return nil, status
		}
		node = next
	}
	switch node.Kind {
	case nodeLeaf:
		return node.Value, LookupFound
	case nodePruned:
		return nil, LookupUnknown
	}
	return nil, LookupAbsent
}

func (t HashTree) child(label []byte) (HashTree, LookupStatus) {
	pruned := false
	for _, n := range t.flatten() {
		switch n.Kind {
		case nodeLabeled:
			if bytes.Equal(n.Label, label) {
				return *n.Left, LookupFound
			}
		case nodePruned:
			pruned = true
		}
	}
	if pruned {
		return HashTree{}, LookupUnknown
	}
	return HashTree{}, LookupAbsent
}

// flatten lists the labeled, pruned and leaf nodes reachable through forks.
func (t HashTree) flatten() []HashTree {
	switch t.Kind {
	case nodeEmpty:
		return nil
	case nodeFork:
		return append(t.Left.flatten(), t.Right.flatten()...)
	}
	return []HashTree{t}
}

// Fork, Labeled, Leaf, Pruned and Empty build hash trees, mostly for tests
// and fake replicas.
func Fork(l, r HashTree) HashTree { return HashTree{Kind: nodeFork, Left: &l, Right: &r} }

func Labeled(label []byte, sub HashTree) HashTree {
	return HashTree{Kind: nodeLabeled, Label: label, Left: &sub}
}

func Leaf(v []byte) HashTree   { return HashTree{Kind: nodeLeaf, Value: v} }
func Pruned(h []byte) HashTree { return HashTree{Kind: nodePruned, Value: h} }
func Empty() HashTree          { return HashTree{Kind: nodeEmpty} }

// MarshalCBOR encodes the tree in its array form.
func (t HashTree) MarshalCBOR() ([]byte, error) {
	var v []any
	switch t.Kind {
	case nodeEmpty:
		v = []any{nodeEmpty}
	case nodeFork:
		v = []any{nodeFork, *t.Left, *t.Right}
	case nodeLabeled:
		v = []any{nodeLabeled, t.Label, *t.Left}
	default:
		v = []any{t.Kind, t.Value}
	}
	return encMode.Marshal(v)
}

// MarshalCertificate encodes a certificate, for fake replicas.
func MarshalCertificate(c *Certificate) ([]byte, error) {
	tree, err := c.Tree.MarshalCBOR()
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(certificateWire{Tree: tree, Signature: c.Signature, Delegation: c.Delegation})
}
