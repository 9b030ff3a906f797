package analysis

import (
	"strings"

	"repolens/internal/types"
)

// FilterTree returns a pruned copy of nodes retaining only those whose name
// contains searchTerm case-insensitively, plus the ancestors needed to reach
// them. A node that matches is reported as a leaf: its children are dropped
// from the output even when descendants also match, so a hit stops further
// disclosure of that subtree. Ancestor nodes keep their original language
// statistics unrecomputed.
//
// The input tree is never mutated; result nodes are shallow copies with
// replaced children, so the unfiltered tree stays valid for reuse.
// An empty searchTerm returns the input unchanged.
func FilterTree(nodes []*types.Node, searchTerm string) []*types.Node {
	if searchTerm == "" {
		return nodes
	}
	return filterNodes(nodes, strings.ToLower(searchTerm))
}

// filterNodes applies the already-lowered term to one sibling list.
func filterNodes(nodes []*types.Node, loweredTerm string) []*types.Node {
	var matchingNodes []*types.Node
	for _, node := range nodes {
		if strings.Contains(strings.ToLower(node.Name), loweredTerm) {
			matchedCopy := *node
			matchedCopy.Children = nil
			matchingNodes = append(matchingNodes, &matchedCopy)
			continue
		}
		if !node.IsDirectory() {
			continue
		}
		matchingChildren := filterNodes(node.Children, loweredTerm)
		if len(matchingChildren) == 0 {
			continue
		}
		prunedCopy := *node
		prunedCopy.Children = matchingChildren
		matchingNodes = append(matchingNodes, &prunedCopy)
	}
	return matchingNodes
}
