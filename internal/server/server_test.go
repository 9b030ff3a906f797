package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"repolens/internal/repo"
	"repolens/internal/server"
	"repolens/internal/types"
)

const testRepositoryURL = "https://example.com/project.git"

// fixtureCloner stands in for git: every call materializes a small source
// tree in a fresh directory and counts its invocations.
type fixtureCloner struct {
	cloneCalls atomic.Int64
}

func (cloner *fixtureCloner) Clone(ctx context.Context, remoteURL string) (*repo.Checkout, error) {
	cloner.cloneCalls.Add(1)
	checkoutDirectory, tempDirError := os.MkdirTemp("", "repolens-test-*")
	if tempDirError != nil {
		return nil, tempDirError
	}
	files := []string{
		filepath.Join("src", "index.ts"),
		filepath.Join("src", "app.js"),
		"README.md",
	}
	for _, relativeFile := range files {
		filePath := filepath.Join(checkoutDirectory, relativeFile)
		if makeDirError := os.MkdirAll(filepath.Dir(filePath), 0o755); makeDirError != nil {
			return nil, makeDirError
		}
		if writeError := os.WriteFile(filePath, []byte("content"), 0o644); writeError != nil {
			return nil, writeError
		}
	}
	return &repo.Checkout{URL: remoteURL, Dir: checkoutDirectory}, nil
}

// startTestServer runs a server with the fixture cloner and returns its base
// address. The server stops when the test finishes.
func startTestServer(testingHandle *testing.T, cloner server.Cloner) string {
	testingHandle.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	analysisServer, serverError := server.New(server.Config{Address: "127.0.0.1:0"}, nil, cloner)
	if serverError != nil {
		cancel()
		testingHandle.Fatalf("creating server: %v", serverError)
	}

	addressCh := make(chan string, 1)
	errorCh := make(chan error, 1)
	go func() {
		errorCh <- analysisServer.Run(ctx, func(boundAddress string) {
			addressCh <- boundAddress
		})
	}()

	var boundAddress string
	select {
	case boundAddress = <-addressCh:
	case <-time.After(2 * time.Second):
		cancel()
		testingHandle.Fatalf("server did not start")
	}

	testingHandle.Cleanup(func() {
		cancel()
		if runError := <-errorCh; runError != nil {
			testingHandle.Errorf("server error: %v", runError)
		}
	})
	return boundAddress
}

// analyzeURL builds the analyze endpoint URL for the given query parameters.
func analyzeURL(boundAddress string, repositoryURL string, subPath string, searchTerm string) string {
	queryValues := url.Values{}
	if repositoryURL != "" {
		queryValues.Set("repo", repositoryURL)
	}
	if subPath != "" {
		queryValues.Set("path", subPath)
	}
	if searchTerm != "" {
		queryValues.Set("search", searchTerm)
	}
	return fmt.Sprintf("http://%s/api/analyze?%s", boundAddress, queryValues.Encode())
}

// TestServerAnalyzeReturnsAnnotatedTree verifies the happy path end to end.
func TestServerAnalyzeReturnsAnnotatedTree(testingHandle *testing.T) {
	boundAddress := startTestServer(testingHandle, &fixtureCloner{})

	response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "src", ""))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testingHandle.Fatalf("unexpected status: %d", response.StatusCode)
	}

	var tree types.Node
	if decodeError := json.NewDecoder(response.Body).Decode(&tree); decodeError != nil {
		testingHandle.Fatalf("decode response: %v", decodeError)
	}
	if tree.Name != "src" || tree.Type != types.NodeTypeDirectory {
		testingHandle.Fatalf("unexpected root node: %+v", tree)
	}
	if len(tree.Children) != 2 {
		testingHandle.Fatalf("expected 2 children, got %d", len(tree.Children))
	}
	if tree.LanguageAnalysis == nil || tree.LanguageAnalysis.TotalFiles != 2 {
		testingHandle.Fatalf("unexpected statistics: %+v", tree.LanguageAnalysis)
	}
}

// TestServerAnalyzeAppliesSearchFilter verifies per-request filtering.
func TestServerAnalyzeAppliesSearchFilter(testingHandle *testing.T) {
	boundAddress := startTestServer(testingHandle, &fixtureCloner{})

	response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "", "index"))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testingHandle.Fatalf("unexpected status: %d", response.StatusCode)
	}

	var tree types.Node
	if decodeError := json.NewDecoder(response.Body).Decode(&tree); decodeError != nil {
		testingHandle.Fatalf("decode response: %v", decodeError)
	}
	if len(tree.Children) != 1 || tree.Children[0].Name != "src" {
		testingHandle.Fatalf("expected only src to survive, got %+v", tree.Children)
	}
	if len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].Name != "index.ts" {
		testingHandle.Fatalf("expected index.ts leaf, got %+v", tree.Children[0].Children)
	}
}

// TestServerAnalyzeMissingSubPathReturnsNotFound verifies 404 mapping.
func TestServerAnalyzeMissingSubPathReturnsNotFound(testingHandle *testing.T) {
	boundAddress := startTestServer(testingHandle, &fixtureCloner{})

	response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "does-not-exist", ""))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusNotFound {
		testingHandle.Fatalf("expected 404, got %d", response.StatusCode)
	}
}

// TestServerAnalyzeEscapingSubPathReturnsNotFound verifies that a sub-path
// climbing out of the checkout cannot disclose host directories: a directory
// with content exists right beside the checkout, and requesting it via ".."
// must yield 404, not a listing.
func TestServerAnalyzeEscapingSubPathReturnsNotFound(testingHandle *testing.T) {
	outsideDirectory, tempDirError := os.MkdirTemp("", "repolens-outside-*")
	if tempDirError != nil {
		testingHandle.Fatalf("creating outside directory: %v", tempDirError)
	}
	testingHandle.Cleanup(func() { _ = os.RemoveAll(outsideDirectory) })
	if writeError := os.WriteFile(filepath.Join(outsideDirectory, "secret.txt"), []byte("content"), 0o644); writeError != nil {
		testingHandle.Fatalf("writing outside file: %v", writeError)
	}

	boundAddress := startTestServer(testingHandle, &fixtureCloner{})
	escapingPaths := []string{
		"..",
		filepath.Join("..", filepath.Base(outsideDirectory)),
	}
	for _, escapingPath := range escapingPaths {
		response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, escapingPath, ""))
		if requestError != nil {
			testingHandle.Fatalf("perform request for %q: %v", escapingPath, requestError)
		}
		response.Body.Close()
		if response.StatusCode != http.StatusNotFound {
			testingHandle.Fatalf("sub-path %q: expected 404, got %d", escapingPath, response.StatusCode)
		}
	}
}

// TestServerAnalyzeRequiresRepoParameter verifies 400 on a missing repo URL.
func TestServerAnalyzeRequiresRepoParameter(testingHandle *testing.T) {
	boundAddress := startTestServer(testingHandle, &fixtureCloner{})

	response, requestError := http.Get(fmt.Sprintf("http://%s/api/analyze", boundAddress))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		testingHandle.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

// TestServerAnalyzeFailedCloneReturnsBadGateway verifies upstream mapping.
func TestServerAnalyzeFailedCloneReturnsBadGateway(testingHandle *testing.T) {
	failingCloner := server.ClonerFunc(func(ctx context.Context, remoteURL string) (*repo.Checkout, error) {
		return nil, fmt.Errorf("cloning %s: connection refused", remoteURL)
	})
	boundAddress := startTestServer(testingHandle, failingCloner)

	response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "", ""))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadGateway {
		testingHandle.Fatalf("expected 502, got %d", response.StatusCode)
	}
}

// TestServerCachesUnfilteredTrees verifies that repeated requests for the
// same repository and sub-path clone only once.
func TestServerCachesUnfilteredTrees(testingHandle *testing.T) {
	cloner := &fixtureCloner{}
	boundAddress := startTestServer(testingHandle, cloner)

	for requestIndex := 0; requestIndex < 3; requestIndex++ {
		response, requestError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "", "app"))
		if requestError != nil {
			testingHandle.Fatalf("perform request %d: %v", requestIndex, requestError)
		}
		if response.StatusCode != http.StatusOK {
			testingHandle.Fatalf("unexpected status on request %d: %d", requestIndex, response.StatusCode)
		}
		response.Body.Close()
	}

	if callCount := cloner.cloneCalls.Load(); callCount != 1 {
		testingHandle.Fatalf("expected a single clone, got %d", callCount)
	}
}

// TestServerCacheDistinguishesRepoAndSubPath verifies that a repository URL
// and sub-path pair never shares a cache entry with a different pair, even
// when characters of one component bleed into the other.
func TestServerCacheDistinguishesRepoAndSubPath(testingHandle *testing.T) {
	cloner := &fixtureCloner{}
	boundAddress := startTestServer(testingHandle, cloner)

	firstResponse, firstError := http.Get(analyzeURL(boundAddress, testRepositoryURL+"|src", "", ""))
	if firstError != nil {
		testingHandle.Fatalf("perform first request: %v", firstError)
	}
	firstResponse.Body.Close()
	if firstResponse.StatusCode != http.StatusOK {
		testingHandle.Fatalf("unexpected first status: %d", firstResponse.StatusCode)
	}

	secondResponse, secondError := http.Get(analyzeURL(boundAddress, testRepositoryURL, "src|", ""))
	if secondError != nil {
		testingHandle.Fatalf("perform second request: %v", secondError)
	}
	secondResponse.Body.Close()
	if secondResponse.StatusCode != http.StatusNotFound {
		testingHandle.Fatalf("expected 404 for the distinct pair, got %d", secondResponse.StatusCode)
	}
	if callCount := cloner.cloneCalls.Load(); callCount != 2 {
		testingHandle.Fatalf("expected 2 clones for 2 distinct pairs, got %d", callCount)
	}
}

// TestServerHealthEndpoint verifies the liveness probe.
func TestServerHealthEndpoint(testingHandle *testing.T) {
	boundAddress := startTestServer(testingHandle, &fixtureCloner{})

	response, requestError := http.Get(fmt.Sprintf("http://%s/healthz", boundAddress))
	if requestError != nil {
		testingHandle.Fatalf("perform request: %v", requestError)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		testingHandle.Fatalf("expected 200, got %d", response.StatusCode)
	}
}
