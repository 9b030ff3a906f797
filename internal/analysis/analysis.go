package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"repolens/internal/types"
)

const (
	// errorPathNotFoundFormat reports a missing or non-directory sub-path.
	errorPathNotFoundFormat = "sub-path %q: %w"
	// errorStatTargetFormat reports failure to inspect the requested target.
	errorStatTargetFormat = "inspecting target %s: %w"
	// rootRelativePath is the path reported for the analysis root itself.
	rootRelativePath = "."
)

// ErrPathNotFound reports that the requested sub-path does not exist under
// the analysis root. Callers can branch on it with errors.Is to distinguish
// a bad request from a traversal failure.
var ErrPathNotFound = errors.New("path not found under analysis root")

// Analyzer runs the full pipeline for a single request: validate the target,
// build the annotated tree, and optionally prune it by a search term.
// Analyzer values are stateless and safe for concurrent use; every request
// operates on its own tree.
type Analyzer struct {
	Builder TreeBuilder
}

// Analyze builds the annotated tree for rootBasePath/relativePath and applies
// searchTerm when it is non-empty. The analysis either fully succeeds or
// fully fails; no partial tree is ever returned. A relativePath that does not
// name a directory under the root fails with ErrPathNotFound.
func (analyzer *Analyzer) Analyze(rootBasePath string, relativePath string, searchTerm string) (*types.Node, error) {
	rootNode, buildError := analyzer.BuildTree(rootBasePath, relativePath)
	if buildError != nil {
		return nil, buildError
	}
	if searchTerm == "" {
		return rootNode, nil
	}
	return PruneTree(rootNode, searchTerm), nil
}

// BuildTree runs validation, build, and aggregation, returning the unfiltered
// root node. Serving layers that cache trees call this once and apply
// PruneTree per request.
//
// relativePath must stay inside rootBasePath: an absolute path or one that
// climbs out via ".." fails with ErrPathNotFound, so caller-supplied paths
// can never reach directories outside the root.
func (analyzer *Analyzer) BuildTree(rootBasePath string, relativePath string) (*types.Node, error) {
	if relativePath != "" && (filepath.IsAbs(relativePath) || !filepath.IsLocal(relativePath)) {
		return nil, fmt.Errorf(errorPathNotFoundFormat, relativePath, ErrPathNotFound)
	}
	targetPath := filepath.Join(rootBasePath, relativePath)
	targetInfo, statError := os.Stat(targetPath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return nil, fmt.Errorf(errorPathNotFoundFormat, relativePath, ErrPathNotFound)
		}
		return nil, fmt.Errorf(errorStatTargetFormat, targetPath, statError)
	}
	if !targetInfo.IsDir() {
		return nil, fmt.Errorf(errorPathNotFoundFormat, relativePath, ErrPathNotFound)
	}

	children, buildError := analyzer.Builder.Build(rootBasePath, relativePath)
	if buildError != nil {
		return nil, buildError
	}

	statistics := AggregateLanguages(children)
	rootNode := &types.Node{
		Name:             filepath.Base(targetPath),
		Path:             rootNodePath(relativePath),
		Type:             types.NodeTypeDirectory,
		Children:         children,
		LanguageAnalysis: &statistics,
	}
	return rootNode, nil
}

// PruneTree applies the search filter to a built tree. The root node is kept
// as ancestor context; only its subtree participates in matching. The input
// tree is not modified.
func PruneTree(rootNode *types.Node, searchTerm string) *types.Node {
	if searchTerm == "" {
		return rootNode
	}
	prunedRoot := *rootNode
	prunedRoot.Children = FilterTree(rootNode.Children, searchTerm)
	return &prunedRoot
}

// rootNodePath normalizes the reported path of the analysis root.
func rootNodePath(relativePath string) string {
	if relativePath == "" {
		return rootRelativePath
	}
	return filepath.ToSlash(relativePath)
}
