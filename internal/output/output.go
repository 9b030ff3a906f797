// Package output renders analyzed trees for the command line.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"repolens/internal/types"
)

const (
	indentPrefix = ""
	indentSpacer = "  "

	treeBranchConnector = "├── "
	treeLastConnector   = "└── "
	treeBranchPadding   = "│   "
	treeLastPadding     = "    "

	directoryAnnotationFormat = "%s/ [%s, %d files]\n"
	directorySuffix           = "/"
)

// RenderJSON marshals the analyzed tree as indented JSON.
func RenderJSON(rootNode *types.Node) (string, error) {
	encoded, jsonEncodeError := json.MarshalIndent(rootNode, indentPrefix, indentSpacer)
	if jsonEncodeError != nil {
		return "", fmt.Errorf("encoding tree as JSON: %w", jsonEncodeError)
	}
	return string(encoded), nil
}

// RenderRaw returns the analyzed tree as an indented unix-style listing.
// Directories are annotated with their dominant language and file total.
func RenderRaw(rootNode *types.Node) string {
	var buffer bytes.Buffer
	writeNodeLine(&buffer, rootNode, "")
	writeChildren(&buffer, rootNode.Children, "")
	return buffer.String()
}

func writeChildren(buffer *bytes.Buffer, children []*types.Node, prefix string) {
	for childIndex, child := range children {
		isLastChild := childIndex == len(children)-1
		connector := treeBranchConnector
		childPadding := treeBranchPadding
		if isLastChild {
			connector = treeLastConnector
			childPadding = treeLastPadding
		}
		writeNodeLine(buffer, child, prefix+connector)
		if child.IsDirectory() {
			writeChildren(buffer, child.Children, prefix+childPadding)
		}
	}
}

func writeNodeLine(buffer *bytes.Buffer, node *types.Node, linePrefix string) {
	if node.IsDirectory() && node.LanguageAnalysis != nil {
		fmt.Fprintf(buffer, directoryAnnotationFormat,
			linePrefix+node.Name, node.LanguageAnalysis.DominantLanguage, node.LanguageAnalysis.TotalFiles)
		return
	}
	if node.IsDirectory() {
		buffer.WriteString(linePrefix + node.Name + directorySuffix + "\n")
		return
	}
	buffer.WriteString(linePrefix + node.Name + "\n")
}
