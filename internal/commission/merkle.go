package commission

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var errProofIndex = errors.New("leaf index out of range")

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// hashLeaf and hashNode use distinct prefixes so a leaf can never be
// presented as an inner node.
func hashLeaf(data string) string {
	sum := sha256.Sum256(append([]byte{0x00}, data...))
	return hex.EncodeToString(sum[:])
}

func hashNode(left, right string) string {
	l, _ := hex.DecodeString(left)
	r, _ := hex.DecodeString(right)
	buf := make([]byte, 0, 1+len(l)+len(r))
	buf = append(buf, 0x01)
	buf = append(buf, l...)
	buf = append(buf, r...)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

func nextLevel(level []string) []string {
	if len(level)%2 != 0 {
		level = append(level, level[len(level)-1])
	}
	out := make([]string, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		out = append(out, hashNode(level[i], level[i+1]))
	}
	return out
}

// MerkleRoot builds the tree level by level; an odd level repeats its last node.
func MerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// MerkleProof returns the sibling path for leaves[index].
func MerkleProof(leaves []string, index int) ([]ProofStep, error) {
	if index < 0 || index >= len(leaves) {
		return nil, fmt.Errorf("MerkleProof: index %d of %d: %w", index, len(leaves), errProofIndex)
	}
	level := append([]string(nil), leaves...)
	var proof []ProofStep
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		sibling := index ^ 1
		proof = append(proof, ProofStep{Hash: level[sibling], Left: sibling < index})
		level = nextLevel(level)
		index /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from a leaf and its path.
func VerifyProof(leaf string, proof []ProofStep, root string) bool {
	cur := leaf
	for _, step := range proof {
		if step.Left {
			cur = hashNode(step.Hash, cur)
		} else {
			cur = hashNode(cur, step.Hash)
		}
	}
	return cur == root
}
