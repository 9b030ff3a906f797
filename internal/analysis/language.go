package analysis

import (
	"fmt"
	"strings"

	"repolens/internal/types"
)

// percentageFormat renders a share of the file total with one decimal place.
const percentageFormat = "%.1f%%"

// languageSuffixTable maps file-name suffixes to language labels. Matching is
// case-insensitive and first-match-wins; the suffixes are mutually disjoint,
// so table order never changes which label a file receives.
var languageSuffixTable = []struct {
	suffix string
	label  types.Label
}{
	{".js", types.LabelJS},
	{".ts", types.LabelTS},
	{".vue", types.LabelVue},
	{".json", types.LabelJSON},
	{".html", types.LabelHTML},
	{".css", types.LabelCSS},
	{".java", types.LabelJava},
	{".cs", types.LabelCS},
	{".c", types.LabelC},
	{".cpp", types.LabelCPP},
}

// AggregateLanguages computes language statistics over the fully built
// children of a directory, descending into every subdirectory so that the
// totals cover the whole subtree. The function is pure: it reads the nodes
// and touches nothing else.
//
// The dominant language is the label with the strictly highest percentage.
// Ties keep whichever label was encountered first during the walk, which is
// deterministic because children are built in lexicographic order.
func AggregateLanguages(children []*types.Node) types.LanguageStats {
	counts := make(map[types.Label]int)
	var firstSeenLabels []types.Label
	totalFiles := collectFileCounts(children, counts, &firstSeenLabels)

	statistics := types.LanguageStats{
		TotalFiles:       totalFiles,
		DominantLanguage: types.NoLanguage,
		Counts:           counts,
		Percentages:      make(map[types.Label]string),
	}
	if totalFiles == 0 {
		return statistics
	}

	dominantLabel := firstSeenLabels[0]
	highestPercentage := -1.0
	for _, label := range firstSeenLabels {
		percentage := float64(counts[label]) / float64(totalFiles) * 100
		statistics.Percentages[label] = fmt.Sprintf(percentageFormat, percentage)
		if percentage > highestPercentage {
			highestPercentage = percentage
			dominantLabel = label
		}
	}
	statistics.DominantLanguage = strings.ToUpper(string(dominantLabel))

	return statistics
}

// collectFileCounts walks the nodes recursively, incrementing one label per
// file. It records the order in which distinct labels first appear so the
// caller can resolve dominance ties deterministically.
func collectFileCounts(nodes []*types.Node, counts map[types.Label]int, firstSeenLabels *[]types.Label) int {
	totalFiles := 0
	for _, node := range nodes {
		if node.IsDirectory() {
			totalFiles += collectFileCounts(node.Children, counts, firstSeenLabels)
			continue
		}
		label := classifyFileName(node.Name)
		if _, seen := counts[label]; !seen {
			*firstSeenLabels = append(*firstSeenLabels, label)
		}
		counts[label]++
		totalFiles++
	}
	return totalFiles
}

// classifyFileName resolves a file name to its language label, falling back
// to LabelOther when no suffix matches.
func classifyFileName(fileName string) types.Label {
	loweredName := strings.ToLower(fileName)
	for _, tableEntry := range languageSuffixTable {
		if strings.HasSuffix(loweredName, tableEntry.suffix) {
			return tableEntry.label
		}
	}
	return types.LabelOther
}
