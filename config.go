package sazed

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
)

// Config is the host-side engine configuration, persisted as config.yaml in
// the configuration directory and broadcast (in part) to connected clients.
type Config struct {
	viper          *viper.Viper
	ConfigDir      string               `mapstructure:"config_dir"`      // Current config dir
	Host           string               `mapstructure:"host"`            // Loopback address the stream binds to
	Port           int                  `mapstructure:"port"`            // Stream port
	MaxLogEntries  int                  `mapstructure:"max_log_entries"` // Log store ring-buffer capacity
	NetworkEnabled bool                 `mapstructure:"network_enabled"` // Whether clients capture network calls
	CaptureErrors  bool                 `mapstructure:"capture_errors"`  // Whether clients capture errors and panics
	Capture        serialize.Options    `mapstructure:"capture"`         // Value serialization limits
	PathMappings   []domain.PathMapping `mapstructure:"path_mappings"`   // Ordered location rewrite rules
	WorkspaceRoots []string             `mapstructure:"workspace_roots"` // Roots that relative locations resolve against
	ArchivePath    string               `mapstructure:"archive_path"`    // SQLite archive file, empty disables persistence
}

// AddPathMapping appends a mapping rule and persists the configuration.
func (cfg *Config) AddPathMapping(urlPrefix, localPathPrefix string) error {
	cfg.PathMappings = append(cfg.PathMappings, domain.PathMapping{
		URLPrefix:       urlPrefix,
		LocalPathPrefix: localPathPrefix,
	})
	cfg.viper.Set("path_mappings", cfg.PathMappings)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}

// AddWorkspaceRoot appends a workspace root and persists the configuration.
func (cfg *Config) AddWorkspaceRoot(root string) error {
	cfg.WorkspaceRoots = append(cfg.WorkspaceRoots, root)
	cfg.viper.Set("workspace_roots", cfg.WorkspaceRoots)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}

// Payload builds the config frame broadcast to every live session.
func (cfg *Config) Payload() ConfigPayload {
	networkEnabled := cfg.NetworkEnabled
	captureErrors := cfg.CaptureErrors
	capture := cfg.Capture
	return ConfigPayload{
		NetworkEnabled:    &networkEnabled,
		CaptureErrors:     &captureErrors,
		LogCaptureOptions: &capture,
	}
}
