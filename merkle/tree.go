// Package merkle implements the fixed-depth accumulator that records
// registered identity leaves. Nodes are hashed with the circomlib MiMC
// sponge so roots match the on-chain registry and the membership circuit.
package merkle

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/crypto"

	"idprivacy/errs"
)

// DefaultLevels is the tree depth agreed with the registry contract.
const DefaultLevels = 20

// ZeroElement fills empty leaf positions: keccak256("tornado") mod p.
var ZeroElement = new(big.Int).Mod(new(big.Int).SetBytes(crypto.Keccak256([]byte("tornado"))), fr.Modulus())

// Proof is a membership path from a leaf to the root.
type Proof struct {
	Root         *big.Int
	Leaf         *big.Int
	Index        int
	PathElements []*big.Int
	PathIndices  []int
}

// Tree is an append-only Merkle tree of fixed depth. Leaves are kept in
// insertion order; layers are recomputed incrementally on insert.
type Tree struct {
	levels int
	zeros  []*big.Int
	layers [][]*big.Int
}

// Zeros returns the empty subtree hashes for every level, zeros[0] being
// the empty leaf and zeros[levels] the root of an empty tree.
func Zeros(levels int) []*big.Int {
	zeros := make([]*big.Int, levels+1)
	zeros[0] = new(big.Int).Set(ZeroElement)
	for i := 1; i <= levels; i++ {
		zeros[i] = HashLeftRight(zeros[i-1], zeros[i-1])
	}
	return zeros
}

// New builds a tree over leaves in the given order.
func New(levels int, leaves []*big.Int) (*Tree, error) {
	if levels <= 0 || levels > 32 {
		return nil, errs.Ef(errs.Validation, "merkle.New", "invalid tree depth %d", levels)
	}
	t := &Tree{
		levels: levels,
		zeros:  Zeros(levels),
		layers: make([][]*big.Int, levels+1),
	}
	if len(leaves) > t.Capacity() {
		return nil, errs.Ef(errs.Validation, "merkle.New", "%d leaves exceed capacity %d", len(leaves), t.Capacity())
	}
	t.layers[0] = make([]*big.Int, 0, len(leaves))
	for _, l := range leaves {
		t.layers[0] = append(t.layers[0], new(big.Int).Set(l))
	}
	t.rebuild()
	return t, nil
}

// Levels returns the depth.
func (t *Tree) Levels() int { return t.levels }

// Capacity returns the number of leaves the tree can hold.
func (t *Tree) Capacity() int { return 1 << uint(t.levels) }

// Len returns the number of inserted leaves.
func (t *Tree) Len() int { return len(t.layers[0]) }

func (t *Tree) rebuild() {
	for level := 1; level <= t.levels; level++ {
		below := t.layers[level-1]
		n := (len(below) + 1) / 2
		t.layers[level] = make([]*big.Int, n)
		for i := 0; i < n; i++ {
			t.layers[level][i] = t.node(below, 2*i, level-1)
		}
	}
}

func (t *Tree) node(below []*big.Int, i, level int) *big.Int {
	right := t.zeros[level]
	if i+1 < len(below) {
		right = below[i+1]
	}
	return HashLeftRight(below[i], right)
}

// Insert appends a leaf and updates the path to the root.
func (t *Tree) Insert(leaf *big.Int) error {
	if t.Len() >= t.Capacity() {
		return fmt.Errorf("merkle tree is full (%d leaves)", t.Capacity())
	}
	t.layers[0] = append(t.layers[0], new(big.Int).Set(leaf))
	index := t.Len() - 1
	for level := 1; level <= t.levels; level++ {
		index >>= 1
		below := t.layers[level-1]
		h := t.node(below, 2*index, level-1)
		if index < len(t.layers[level]) {
			t.layers[level][index] = h
		} else {
			t.layers[level] = append(t.layers[level], h)
		}
	}
	return nil
}

// Root returns the current root; an empty tree has the all-zero root.
func (t *Tree) Root() *big.Int {
	if t.Len() == 0 {
		return new(big.Int).Set(t.zeros[t.levels])
	}
	return new(big.Int).Set(t.layers[t.levels][0])
}

// IndexOf returns the first position of leaf, or -1.
func (t *Tree) IndexOf(leaf *big.Int) int {
	for i, l := range t.layers[0] {
		if l.Cmp(leaf) == 0 {
			return i
		}
	}
	return -1
}

// Path returns the proof for the leaf at index.
func (t *Tree) Path(index int) (*Proof, error) {
	if index < 0 || index >= t.Len() {
		return nil, errs.Ef(errs.Validation, "merkle.Path", "index %d out of range [0, %d)", index, t.Len())
	}
	p := &Proof{
		Root:         t.Root(),
		Leaf:         new(big.Int).Set(t.layers[0][index]),
		Index:        index,
		PathElements: make([]*big.Int, t.levels),
		PathIndices:  make([]int, t.levels),
	}
	idx := index
	for level := 0; level < t.levels; level++ {
		p.PathIndices[level] = idx % 2
		sibling := idx ^ 1
		if sibling < len(t.layers[level]) {
			p.PathElements[level] = new(big.Int).Set(t.layers[level][sibling])
		} else {
			p.PathElements[level] = new(big.Int).Set(t.zeros[level])
		}
		idx >>= 1
	}
	return p, nil
}

// Proof returns the proof for the first occurrence of leaf.
func (t *Tree) Proof(leaf *big.Int) (*Proof, error) {
	idx := t.IndexOf(leaf)
	if idx < 0 {
		return nil, errs.Ef(errs.Validation, "merkle.Proof", "leaf %s is not in the tree", leaf)
	}
	return t.Path(idx)
}

// Verify recomputes the root from a proof and compares it.
func Verify(p *Proof) bool {
	if p == nil || p.Root == nil || p.Leaf == nil || len(p.PathElements) != len(p.PathIndices) {
		return false
	}
	h := new(big.Int).Set(p.Leaf)
	for i, sibling := range p.PathElements {
		if p.PathIndices[i] == 0 {
			h = HashLeftRight(h, sibling)
		} else {
			h = HashLeftRight(sibling, h)
		}
	}
	return h.Cmp(p.Root) == 0
}

// BuildProof builds a tree over orderedLeaves and returns the path of target.
func BuildProof(levels int, orderedLeaves []*big.Int, target *big.Int) (*Proof, error) {
	t, err := New(levels, orderedLeaves)
	if err != nil {
		return nil, err
	}
	return t.Proof(target)
}
