// Package server exposes repository analysis over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repolens/internal/analysis"
	"repolens/internal/repo"
	"repolens/internal/types"
)

const (
	defaultListenAddress    = "127.0.0.1:0"
	defaultShutdownDuration = 5 * time.Second
	defaultCloneDuration    = 2 * time.Minute
	defaultCacheSize        = 64

	analyzePath = "/api/analyze"
	healthPath  = "/healthz"

	repoQueryParameter   = "repo"
	pathQueryParameter   = "path"
	searchQueryParameter = "search"

	headerContentType = "Content-Type"
	mimeTypeJSON      = "application/json"

	errorFieldName          = "error"
	errorMissingRepository  = "missing repo parameter"
	errorInvalidRepository  = "invalid repo URL"
	logMessageAnalyzeFailed = "analyze request failed"
	logMessageCacheHit      = "serving cached tree"
)

// treeCacheKey identifies one cached unfiltered tree. A struct key keeps
// repository URL and sub-path separate, so no character in either component
// can collide two entries.
type treeCacheKey struct {
	repositoryURL string
	subPath       string
}

// Cloner acquires a disposable local copy of a remote repository.
type Cloner interface {
	Clone(ctx context.Context, remoteURL string) (*repo.Checkout, error)
}

// ClonerFunc adapts a function into a Cloner.
type ClonerFunc func(ctx context.Context, remoteURL string) (*repo.Checkout, error)

// Clone invokes the underlying function.
func (cloner ClonerFunc) Clone(ctx context.Context, remoteURL string) (*repo.Checkout, error) {
	return cloner(ctx, remoteURL)
}

// Config defines runtime options for the analysis server.
type Config struct {
	Address         string
	CloneTimeout    time.Duration
	ShutdownTimeout time.Duration
	CacheSize       int
	ExcludedNames   []string
}

// Server serves analyzed repository trees over HTTP. Unfiltered trees are
// cached per repository and sub-path; the search filter runs per request on
// the cached tree, which is safe because filtering copies instead of
// mutating.
type Server struct {
	config    Config
	logger    *zap.Logger
	cloner    Cloner
	analyzer  analysis.Analyzer
	treeCache *lru.Cache[treeCacheKey, *types.Node]
}

// New creates a Server with defaults applied. A nil logger disables logging;
// a nil cloner uses real git clones.
func New(config Config, logger *zap.Logger, cloner Cloner) (*Server, error) {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = defaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.CloneTimeout <= 0 {
		normalized.CloneTimeout = defaultCloneDuration
	}
	if normalized.CacheSize <= 0 {
		normalized.CacheSize = defaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cloner == nil {
		cloner = ClonerFunc(repo.Clone)
	}
	treeCache, cacheError := lru.New[treeCacheKey, *types.Node](normalized.CacheSize)
	if cacheError != nil {
		return nil, fmt.Errorf("creating tree cache: %w", cacheError)
	}
	return &Server{
		config:    normalized,
		logger:    logger,
		cloner:    cloner,
		analyzer:  analysis.Analyzer{Builder: analysis.TreeBuilder{ExcludedNames: normalized.ExcludedNames}},
		treeCache: treeCache,
	}, nil
}

// Run starts the server and blocks until the provided context is canceled.
// The notify callback receives the bound address once the listener is active.
func (server *Server) Run(ctx context.Context, notify func(string)) error {
	listener, listenError := net.Listen("tcp", server.config.Address)
	if listenError != nil {
		return fmt.Errorf("listen on %s: %w", server.config.Address, listenError)
	}
	actualAddress := listener.Addr().String()

	router := http.NewServeMux()
	router.HandleFunc(analyzePath, server.handleAnalyze)
	router.HandleFunc(healthPath, server.handleHealth)

	httpServer := &http.Server{Handler: router}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveError := httpServer.Serve(listener)
		if serveError != nil && !errors.Is(serveError, http.ErrServerClosed) {
			return fmt.Errorf("serve analysis API: %w", serveError)
		}
		return nil
	})

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownError := httpServer.Shutdown(shutdownCtx)
		if shutdownError != nil && !errors.Is(shutdownError, context.Canceled) && !errors.Is(shutdownError, http.ErrServerClosed) {
			return fmt.Errorf("shutdown analysis API: %w", shutdownError)
		}
		return nil
	})

	return group.Wait()
}

func (server *Server) handleHealth(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (server *Server) handleAnalyze(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	queryValues := request.URL.Query()
	repositoryURL := queryValues.Get(repoQueryParameter)
	if repositoryURL == "" {
		server.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: errorMissingRepository})
		return
	}
	if parsedURL, parseError := url.Parse(repositoryURL); parseError != nil || parsedURL.Scheme == "" {
		server.writeJSON(writer, http.StatusBadRequest, map[string]string{errorFieldName: errorInvalidRepository})
		return
	}
	subPath := queryValues.Get(pathQueryParameter)
	searchTerm := queryValues.Get(searchQueryParameter)

	rootNode, analyzeError := server.analyzedTree(request.Context(), repositoryURL, subPath)
	if analyzeError != nil {
		statusCode := server.statusCodeFromError(analyzeError)
		server.logger.Warn(logMessageAnalyzeFailed,
			zap.String("repo", repositoryURL),
			zap.String("path", subPath),
			zap.Int("status", statusCode),
			zap.Error(analyzeError))
		server.writeJSON(writer, statusCode, map[string]string{errorFieldName: analyzeError.Error()})
		return
	}

	server.writeJSON(writer, http.StatusOK, analysis.PruneTree(rootNode, searchTerm))
}

// analyzedTree returns the unfiltered tree for the repository sub-path,
// cloning and analyzing on a cache miss.
func (server *Server) analyzedTree(ctx context.Context, repositoryURL string, subPath string) (*types.Node, error) {
	cacheKey := treeCacheKey{repositoryURL: repositoryURL, subPath: subPath}
	if cachedTree, found := server.treeCache.Get(cacheKey); found {
		server.logger.Debug(logMessageCacheHit, zap.String("repo", repositoryURL), zap.String("path", subPath))
		return cachedTree, nil
	}

	cloneCtx, cancel := context.WithTimeout(ctx, server.config.CloneTimeout)
	defer cancel()
	checkout, cloneError := server.cloner.Clone(cloneCtx, repositoryURL)
	if cloneError != nil {
		return nil, &cloneFailure{err: cloneError}
	}
	defer func() { _ = checkout.Close() }()

	rootNode, buildError := server.analyzer.BuildTree(checkout.Dir, subPath)
	if buildError != nil {
		return nil, buildError
	}
	server.treeCache.Add(cacheKey, rootNode)
	return rootNode, nil
}

// cloneFailure tags errors from repository acquisition so they map to an
// upstream failure status rather than an internal one.
type cloneFailure struct {
	err error
}

func (failure *cloneFailure) Error() string {
	return failure.err.Error()
}

func (failure *cloneFailure) Unwrap() error {
	return failure.err
}

func (server *Server) statusCodeFromError(err error) int {
	if errors.Is(err, analysis.ErrPathNotFound) {
		return http.StatusNotFound
	}
	var failure *cloneFailure
	if errors.As(err, &failure) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (server *Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeError := json.NewEncoder(&buffer).Encode(payload); encodeError != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf("encode response: %v", encodeError)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}
