// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"repolens/internal/analysis"
	"repolens/internal/config"
	"repolens/internal/output"
	"repolens/internal/repo"
	"repolens/internal/server"
	"repolens/internal/types"
	"repolens/internal/utils"
)

const (
	rootUse              = "repolens"
	rootShortDescription = "repolens command line interface"
	rootLongDescription  = `repolens analyzes source trees.
It builds a file hierarchy with per-directory language statistics for a local
directory or a freshly cloned remote repository, optionally filtered by a
name substring. Use --format to select json or raw output.`

	versionFlagName        = "version"
	versionFlagDescription = "display application version"
	versionTemplate        = "repolens version: %s\n"

	treeUse               = "tree <directory>"
	treeAlias             = "t"
	treeShortDescription  = "analyze a local directory (" + treeAlias + ")"
	treeLongDescription   = `Analyze a local directory tree.
Use --path to restrict analysis to a sub-path and --search to prune the
result to entries whose name contains the term.`
	treeUsageExample      = `  # Analyze the current directory as JSON
  repolens tree .

  # Analyze the src sub-path, keeping only entries matching "index"
  repolens tree . --path src --search index`

	repoUse              = "repo <url>"
	repoAlias            = "r"
	repoShortDescription = "clone and analyze a remote repository (" + repoAlias + ")"
	repoLongDescription  = `Clone a remote git repository into a disposable directory, analyze it, and
remove the clone. The same --path, --search, and --format flags apply.`
	repoUsageExample     = `  # Analyze a repository's src directory
  repolens repo https://example.com/project.git --path src`

	serveUse              = "serve"
	serveAlias            = "s"
	serveShortDescription = "run the analysis HTTP server (" + serveAlias + ")"
	serveLongDescription  = `Serve repository analysis over HTTP.
GET /api/analyze?repo=<url>&path=<sub>&search=<term> returns the annotated
tree as JSON.`

	subPathFlagName         = "path"
	subPathFlagDescription  = "sub-path to analyze, relative to the root"
	searchFlagName          = "search"
	searchFlagDescription   = "prune the tree to entries matching this substring"
	formatFlagName          = "format"
	formatFlagDescription   = "output format (json or raw)"
	copyFlagName            = "copy"
	copyFlagDescription     = "copy the rendered output to the clipboard"
	excludeFlagName         = "e"
	excludeFlagDescription  = "exclude entries with this base name"
	configFlagName          = "config"
	configFlagDescription   = "path to a configuration file"
	timeoutFlagName         = "timeout"
	timeoutFlagDescription  = "clone timeout"
	addressFlagName         = "address"
	addressFlagDescription  = "listen address"
	cloneTimeoutFlagName    = "clone-timeout"
	cloneTimeoutDescription = "per-request clone timeout"
	cacheSizeFlagName       = "cache-size"
	cacheSizeDescription    = "number of analyzed trees kept in memory"

	defaultCloneTimeout  = 2 * time.Minute
	defaultListenAddress = "127.0.0.1:8080"

	invalidFormatMessage = "invalid format value '%s'"
	// errorPathMissingFormat reports a missing analysis root.
	errorPathMissingFormat = "path '%s' does not exist"
	// errorNotDirectoryFormat reports a root that is not a directory.
	errorNotDirectoryFormat = "path '%s' is not a directory"
	// errorStatFormat reports failure to retrieve file statistics.
	errorStatFormat = "stat failed for '%s': %w"
	// errorClipboardFormat reports a clipboard write failure.
	errorClipboardFormat = "copying output to clipboard: %w"

	serverListeningMessage = "analysis server listening"
)

// Execute runs the repolens application.
func Execute() error {
	rootCommand := createRootCommand()
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var showVersion bool

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRun: func(command *cobra.Command, arguments []string) {
			if showVersion {
				fmt.Printf(versionTemplate, utils.GetApplicationVersion())
				os.Exit(0)
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.AddCommand(
		createTreeCommand(),
		createRepoCommand(),
		createServeCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// analyzeOptions stores flag values shared by the tree and repo commands.
type analyzeOptions struct {
	subPath           string
	searchTerm        string
	outputFormat      string
	copyToClipboard   bool
	exclusionPatterns []string
	configFilePath    string
}

// addAnalyzeFlags registers the shared analysis flags on the command.
func addAnalyzeFlags(command *cobra.Command, options *analyzeOptions) {
	command.Flags().StringVar(&options.subPath, subPathFlagName, "", subPathFlagDescription)
	command.Flags().StringVar(&options.searchTerm, searchFlagName, "", searchFlagDescription)
	command.Flags().StringVar(&options.outputFormat, formatFlagName, "", formatFlagDescription)
	command.Flags().BoolVar(&options.copyToClipboard, copyFlagName, false, copyFlagDescription)
	command.Flags().StringArrayVarP(&options.exclusionPatterns, excludeFlagName, excludeFlagName, nil, excludeFlagDescription)
	command.Flags().StringVar(&options.configFilePath, configFlagName, "", configFlagDescription)
}

// isSupportedFormat reports whether the provided format is recognized.
func isSupportedFormat(format string) bool {
	switch format {
	case types.FormatRaw, types.FormatJSON:
		return true
	default:
		return false
	}
}

// createTreeCommand returns the tree subcommand.
func createTreeCommand() *cobra.Command {
	var options analyzeOptions

	treeCommand := &cobra.Command{
		Use:     treeUse,
		Aliases: []string{treeAlias},
		Short:   treeShortDescription,
		Long:    treeLongDescription,
		Example: treeUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			rootPath := arguments[0]
			rootInfo, statError := os.Stat(rootPath)
			if statError != nil {
				if os.IsNotExist(statError) {
					return fmt.Errorf(errorPathMissingFormat, rootPath)
				}
				return fmt.Errorf(errorStatFormat, rootPath, statError)
			}
			if !rootInfo.IsDir() {
				return fmt.Errorf(errorNotDirectoryFormat, rootPath)
			}
			return runAnalysis(rootPath, options)
		},
	}
	addAnalyzeFlags(treeCommand, &options)
	return treeCommand
}

// createRepoCommand returns the repo subcommand.
func createRepoCommand() *cobra.Command {
	var options analyzeOptions
	var cloneTimeout time.Duration = defaultCloneTimeout

	repoCommand := &cobra.Command{
		Use:     repoUse,
		Aliases: []string{repoAlias},
		Short:   repoShortDescription,
		Long:    repoLongDescription,
		Example: repoUsageExample,
		Args:    cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			remoteURL := arguments[0]
			cloneCtx, cancel := context.WithTimeout(command.Context(), cloneTimeout)
			defer cancel()
			checkout, cloneError := repo.Clone(cloneCtx, remoteURL)
			if cloneError != nil {
				return cloneError
			}
			defer func() { _ = checkout.Close() }()
			return runAnalysis(checkout.Dir, options)
		},
	}
	addAnalyzeFlags(repoCommand, &options)
	repoCommand.Flags().DurationVar(&cloneTimeout, timeoutFlagName, defaultCloneTimeout, timeoutFlagDescription)
	return repoCommand
}

// runAnalysis executes the pipeline over rootPath and prints the rendering.
func runAnalysis(rootPath string, options analyzeOptions) error {
	applicationConfiguration, configError := config.LoadApplicationConfiguration(config.LoadOptions{
		ExplicitFilePath: options.configFilePath,
	})
	if configError != nil {
		return configError
	}

	outputFormat := options.outputFormat
	if outputFormat == "" {
		outputFormat = applicationConfiguration.Analyze.Format
	}
	if outputFormat == "" {
		outputFormat = types.FormatJSON
	}
	if !isSupportedFormat(outputFormat) {
		return fmt.Errorf(invalidFormatMessage, outputFormat)
	}

	excludedNames := utils.DeduplicatePatterns(append(
		append([]string{}, applicationConfiguration.Analyze.Exclude...),
		options.exclusionPatterns...))

	analyzer := analysis.Analyzer{Builder: analysis.TreeBuilder{ExcludedNames: excludedNames}}
	rootNode, analyzeError := analyzer.Analyze(rootPath, options.subPath, options.searchTerm)
	if analyzeError != nil {
		return analyzeError
	}

	var rendered string
	if outputFormat == types.FormatRaw {
		rendered = output.RenderRaw(rootNode)
	} else {
		renderedJSON, renderError := output.RenderJSON(rootNode)
		if renderError != nil {
			return renderError
		}
		rendered = renderedJSON
	}

	fmt.Println(rendered)
	if options.copyToClipboard {
		if clipboardError := clipboard.WriteAll(rendered); clipboardError != nil {
			return fmt.Errorf(errorClipboardFormat, clipboardError)
		}
	}
	return nil
}

// createServeCommand returns the serve subcommand.
func createServeCommand() *cobra.Command {
	var listenAddress string
	var cloneTimeout time.Duration
	var cacheSize int
	var configFilePath string

	serveCommand := &cobra.Command{
		Use:     serveUse,
		Aliases: []string{serveAlias},
		Short:   serveShortDescription,
		Long:    serveLongDescription,
		Args:    cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			_ = godotenv.Load()

			applicationConfiguration, configError := config.LoadApplicationConfiguration(config.LoadOptions{
				ExplicitFilePath: configFilePath,
			})
			if configError != nil {
				return configError
			}

			serverConfiguration := server.Config{
				Address:       applicationConfiguration.Server.Address,
				CloneTimeout:  applicationConfiguration.Server.CloneTimeout,
				CacheSize:     applicationConfiguration.Server.CacheSize,
				ExcludedNames: applicationConfiguration.Analyze.Exclude,
			}
			if listenAddress != "" {
				serverConfiguration.Address = listenAddress
			}
			if serverConfiguration.Address == "" {
				serverConfiguration.Address = defaultListenAddress
			}
			if cloneTimeout > 0 {
				serverConfiguration.CloneTimeout = cloneTimeout
			}
			if cacheSize > 0 {
				serverConfiguration.CacheSize = cacheSize
			}

			loggerInstance, loggerError := utils.NewApplicationLogger()
			if loggerError != nil {
				return loggerError
			}
			defer func() { _ = loggerInstance.Sync() }()

			signalCtx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			analysisServer, serverError := server.New(serverConfiguration, loggerInstance, nil)
			if serverError != nil {
				return serverError
			}
			return analysisServer.Run(signalCtx, func(boundAddress string) {
				loggerInstance.Info(serverListeningMessage + ": " + boundAddress)
			})
		},
	}
	serveCommand.Flags().StringVar(&listenAddress, addressFlagName, "", addressFlagDescription)
	serveCommand.Flags().DurationVar(&cloneTimeout, cloneTimeoutFlagName, 0, cloneTimeoutDescription)
	serveCommand.Flags().IntVar(&cacheSize, cacheSizeFlagName, 0, cacheSizeDescription)
	serveCommand.Flags().StringVar(&configFilePath, configFlagName, "", configFlagDescription)
	return serveCommand
}
