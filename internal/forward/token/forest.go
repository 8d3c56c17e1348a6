package token

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
)

// CheckForest verifies that the parent links of one document form a forest.
// parents[i] is the parent of token i, or -1. Links to ids outside the
// document are dangling and ignored; self links and cycles are corruption.
func CheckForest(parents []int) error {
	const (
		unvisited = iota
		inPath
		done
	)
	state := make([]uint8, len(parents))
	for start := range parents {
		if state[start] != unvisited {
			continue
		}
		path := []int{}
		node := start
		for node >= 0 && node < len(parents) && state[node] == unvisited {
			state[node] = inPath
			path = append(path, node)
			node = parents[node]
		}
		if node >= 0 && node < len(parents) && state[node] == inPath {
			return apperrors.Corruptf("parent cycle through token %d", node)
		}
		for _, n := range path {
			state[n] = done
		}
	}
	return nil
}
