// Package analysis implements the build, aggregate, and filter pipeline that
// turns a directory on disk into an annotated tree of nodes.
package analysis

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"repolens/internal/types"
	"repolens/internal/utils"
)

const (
	// errorReadDirectoryFormat is used when a directory cannot be listed.
	errorReadDirectoryFormat = "reading directory %s: %w"
	// errorStatEntryFormat is used when a directory entry cannot be inspected.
	errorStatEntryFormat = "inspecting %s: %w"
)

// TreeBuilder materializes directory trees rooted at a base path. Directory
// nodes receive their language statistics as soon as their subtree is fully
// built, so every emitted node is complete and never mutated afterwards.
type TreeBuilder struct {
	// ExcludedNames lists entry base names skipped during the walk in
	// addition to the always-excluded VCS metadata directory.
	ExcludedNames []string
}

// Build returns one node per entry of rootBasePath/relativePath, recursing
// into subdirectories depth-first. A target that does not exist or is not a
// directory yields an empty sequence rather than an error; existence of the
// requested analysis root is the caller's concern. Any listing failure
// aborts the whole build.
//
// Children appear in lexicographic name order, which os.ReadDir guarantees.
func (treeBuilder *TreeBuilder) Build(rootBasePath string, relativePath string) ([]*types.Node, error) {
	targetPath := filepath.Join(rootBasePath, relativePath)
	targetInfo, statError := os.Stat(targetPath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil, nil
		}
		return nil, fmt.Errorf(errorStatEntryFormat, targetPath, statError)
	}
	if !targetInfo.IsDir() {
		return nil, nil
	}

	directoryEntries, readDirectoryError := os.ReadDir(targetPath)
	if readDirectoryError != nil {
		return nil, fmt.Errorf(errorReadDirectoryFormat, targetPath, readDirectoryError)
	}

	var nodes []*types.Node
	for _, directoryEntry := range directoryEntries {
		entryName := directoryEntry.Name()
		if entryName == utils.GitDirectoryName {
			continue
		}
		if utils.ContainsString(treeBuilder.ExcludedNames, entryName) {
			continue
		}

		node := &types.Node{
			Name: entryName,
			Path: path.Join(filepath.ToSlash(relativePath), entryName),
		}
		if directoryEntry.IsDir() {
			node.Type = types.NodeTypeDirectory
			childNodes, buildError := treeBuilder.Build(rootBasePath, filepath.Join(relativePath, entryName))
			if buildError != nil {
				return nil, buildError
			}
			node.Children = childNodes
			statistics := AggregateLanguages(childNodes)
			node.LanguageAnalysis = &statistics
		} else {
			node.Type = types.NodeTypeFile
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}
