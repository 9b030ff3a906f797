// Package types defines every cross-package data structure used by repolens.
package types

const (
	// NodeTypeFile marks a regular file entry.
	NodeTypeFile = "file"
	// NodeTypeDirectory marks a directory entry.
	NodeTypeDirectory = "dir"

	// FormatRaw selects the indented text rendering.
	FormatRaw = "raw"
	// FormatJSON selects the JSON rendering.
	FormatJSON = "json"
)

// Label identifies one entry of the closed language label set.
type Label string

// The full label set recognized by the language aggregator. Any file whose
// name matches none of the extension-bearing labels is counted as LabelOther.
const (
	LabelJS    Label = "js"
	LabelTS    Label = "ts"
	LabelVue   Label = "vue"
	LabelJSON  Label = "json"
	LabelHTML  Label = "html"
	LabelCSS   Label = "css"
	LabelJava  Label = "java"
	LabelCS    Label = "cs"
	LabelC     Label = "c"
	LabelCPP   Label = "cpp"
	LabelOther Label = "other"
)

// NoLanguage is the dominant-language value reported for directories with no
// file descendants.
const NoLanguage = "NONE"

// Node represents one file or directory in an analyzed source tree.
// Children and LanguageAnalysis are populated for directory nodes only.
// Nodes are immutable once built; the search filter produces new values
// instead of mutating a built tree.
type Node struct {
	Name             string         `json:"name"`
	Path             string         `json:"path"`
	Type             string         `json:"type"`
	Children         []*Node        `json:"children,omitempty"`
	LanguageAnalysis *LanguageStats `json:"languageAnalysis,omitempty"`
}

// IsDirectory reports whether the node represents a directory.
func (node *Node) IsDirectory() bool {
	return node.Type == NodeTypeDirectory
}

// LanguageStats aggregates the language distribution of every file in a
// directory's subtree. Percentages holds pre-formatted strings such as
// "42.9%" and carries entries only for labels with a nonzero count.
type LanguageStats struct {
	TotalFiles       int              `json:"totalFiles"`
	DominantLanguage string           `json:"dominantLanguage"`
	Counts           map[Label]int    `json:"counts"`
	Percentages      map[Label]string `json:"percentages"`
}
