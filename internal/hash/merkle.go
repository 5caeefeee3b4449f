package hash

import (
	"encoding/hex"
	"fmt"
)

// EmptyRoot is the root reported for a ledger with zero leaves: the sha256
// digest of zero bytes. It can never collide with a real parent node, which
// always digests at least 64 bytes of input.
const EmptyRoot = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Proof is the sibling path from one leaf up to the root. Directions[i] is
// true when Siblings[i] sits to the right of the running hash.
type Proof struct {
	LeafHash   string
	LeafIndex  int
	Siblings   []string
	Directions []bool
}

// ComputeRoot builds a binary hash tree over the leaves in the order given
// and returns its root. Consecutive nodes pair left-to-right; when a level
// has an odd count the last node pairs with itself. Parents digest the raw
// hash bytes of left then right. Leaf order is significant.
func ComputeRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return EmptyRoot, nil
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next, err := computeLevel(level)
		if err != nil {
			return "", err
		}
		level = next
	}

	return level[0], nil
}

func computeLevel(level []string) ([]string, error) {
	next := make([]string, 0, (len(level)+1)/2)

	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}

		parent, err := hashPair(left, right)
		if err != nil {
			return nil, err
		}
		next = append(next, parent)
	}

	return next, nil
}

func hashPair(left, right string) (string, error) {
	leftBytes, err := hex.DecodeString(left)
	if err != nil {
		return "", fmt.Errorf("invalid left hash %q: %w", left, err)
	}
	rightBytes, err := hex.DecodeString(right)
	if err != nil {
		return "", fmt.Errorf("invalid right hash %q: %w", right, err)
	}

	return DigestBytes(append(leftBytes, rightBytes...)), nil
}

// BuildProof extracts the sibling path for the leaf at index. Verifying the
// proof against the tree's root proves the leaf's membership and position
// without the other leaves.
func BuildProof(leaves []string, index int) (*Proof, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("leaf index %d out of range [0,%d)", index, len(leaves))
	}

	proof := &Proof{
		LeafHash:  leaves[index],
		LeafIndex: index,
	}

	level := make([]string, len(leaves))
	copy(level, leaves)
	idx := index

	for len(level) > 1 {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx // odd level: the node pairs with itself
		}

		proof.Siblings = append(proof.Siblings, level[sibling])
		proof.Directions = append(proof.Directions, idx%2 == 0)

		next, err := computeLevel(level)
		if err != nil {
			return nil, err
		}
		level = next
		idx /= 2
	}

	return proof, nil
}

// Verify re-folds the leaf with each sibling in recorded order and compares
// the re-derived root against expectedRoot.
func (p *Proof) Verify(expectedRoot string) bool {
	current := p.LeafHash

	for i, sibling := range p.Siblings {
		var combined string
		var err error

		if p.Directions[i] {
			combined, err = hashPair(current, sibling)
		} else {
			combined, err = hashPair(sibling, current)
		}
		if err != nil {
			return false
		}
		current = combined
	}

	return current == expectedRoot
}
