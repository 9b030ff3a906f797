package main

import (
	"fmt"
	"os"

	"repolens/internal/cli"
	"repolens/internal/utils"
)

// main is the entry point for the repolens command.
func main() {
	loggerInstance, loggerInitializationError := utils.NewApplicationLogger()
	if loggerInitializationError != nil {
		panic(fmt.Errorf("initializing logger: %w", loggerInitializationError))
	}
	defer func() { _ = loggerInstance.Sync() }()
	if applicationExecutionError := cli.Execute(); applicationExecutionError != nil {
		loggerInstance.Error(applicationExecutionError.Error())
		os.Exit(1)
	}
}
