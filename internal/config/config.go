// Package config loads layered application configuration for repolens.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"repolens/internal/utils"
)

const (
	// ConfigFileName is the name of the project-local configuration file.
	ConfigFileName = ".repolens.yaml"
	// GlobalConfigDirectoryName is the directory under the user home that
	// holds the global configuration file.
	GlobalConfigDirectoryName = ".repolens"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds command-specific configuration defaults.
type ApplicationConfiguration struct {
	Analyze AnalyzeConfiguration `mapstructure:"analyze"`
	Server  ServerConfiguration  `mapstructure:"server"`
}

// AnalyzeConfiguration defines defaults shared by the tree and repo commands.
type AnalyzeConfiguration struct {
	Format  string   `mapstructure:"format"`
	Exclude []string `mapstructure:"exclude"`
}

// ServerConfiguration defines defaults for the serve command.
type ServerConfiguration struct {
	Address      string        `mapstructure:"address"`
	CloneTimeout time.Duration `mapstructure:"clone_timeout"`
	CacheSize    int           `mapstructure:"cache_size"`
}

// LoadApplicationConfiguration loads configuration from the global and local
// files, with local values overriding global ones. Missing files are not an
// error.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, GlobalConfigDirectoryName, ConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged.Analyze.Exclude = utils.DeduplicatePatterns(merged.Analyze.Exclude)

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	return filepath.Join(workingDirectory, ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var configuration ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&configuration); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return configuration, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (configuration ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := configuration
	result.Analyze = result.Analyze.merge(override.Analyze)
	result.Server = result.Server.merge(override.Server)
	return result
}

func (configuration AnalyzeConfiguration) merge(override AnalyzeConfiguration) AnalyzeConfiguration {
	result := configuration
	if override.Format != "" {
		result.Format = override.Format
	}
	if len(override.Exclude) > 0 {
		result.Exclude = append([]string{}, utils.DeduplicatePatterns(override.Exclude)...)
	}
	return result
}

func (configuration ServerConfiguration) merge(override ServerConfiguration) ServerConfiguration {
	result := configuration
	if override.Address != "" {
		result.Address = override.Address
	}
	if override.CloneTimeout > 0 {
		result.CloneTimeout = override.CloneTimeout
	}
	if override.CacheSize > 0 {
		result.CacheSize = override.CacheSize
	}
	return result
}
