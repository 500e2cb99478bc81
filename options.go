package sazed

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tfkr-ae/sazed/annotate"
	"github.com/tfkr-ae/sazed/db"
	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
)

// WithConfigDir configures the server from the specified configuration
// directory. It creates the directory if it doesn't exist, initializes the
// configuration file using Viper, and watches it so that edits are
// re-broadcast to every live session without a restart.
func WithConfigDir(appConfigDir string) func(*Server) error {
	return func(server *Server) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				server.Logger.Info("creating config dir")
				if err := os.MkdirAll(appConfigDir, 0700); err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appConfigDir)
		v.SetDefault("host", "127.0.0.1")
		v.SetDefault("port", 4972)
		v.SetDefault("max_log_entries", DefaultMaxLogEntries)
		v.SetDefault("network_enabled", true)
		v.SetDefault("capture_errors", true)
		v.SetDefault("capture.max_depth", serialize.DefaultOptions().MaxDepth)
		v.SetDefault("capture.max_props", serialize.DefaultOptions().MaxProps)
		v.SetDefault("capture.max_array", serialize.DefaultOptions().MaxArray)
		v.SetDefault("capture.max_string_length", serialize.DefaultOptions().MaxStringLength)
		if err := v.ReadInConfig(); err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				if err := v.SafeWriteConfig(); err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}

		cfg := &Config{viper: v, ConfigDir: appConfigDir}
		if err := v.Unmarshal(cfg); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}
		server.Config = cfg
		server.Store = NewStore(cfg.MaxLogEntries)
		server.configPayload = cfg.Payload()

		v.OnConfigChange(func(event fsnotify.Event) {
			if err := v.Unmarshal(cfg); err != nil {
				server.Logger.WithError(err).Warn("reloading config failed")
				return
			}
			server.Logger.WithField("file", event.Name).Info("config reloaded")
			if server.Annotator != nil {
				server.Annotator.SetCorrelator(annotate.NewCorrelator(cfg.PathMappings, cfg.WorkspaceRoots))
			}
			server.SetConfig(cfg.Payload())
		})
		v.WatchConfig()
		return nil
	}
}

// WithArchive attaches the SQLite event archive. Requires WithConfigDir to
// have been applied first; the archive file defaults to sazed.db inside the
// configuration directory.
func WithArchive() func(*Server) error {
	return func(server *Server) error {
		if server.Config == nil {
			return errors.New("server has no configuration, apply WithConfigDir first")
		}
		path := server.Config.ArchivePath
		if path == "" {
			path = filepath.Join(server.Config.ConfigDir, "sazed.db")
		}
		dbConn, err := db.New(path)
		if err != nil {
			return fmt.Errorf("opening archive %s : %w", path, err)
		}
		server.Archive = db.NewEventRepo(dbConn)
		return nil
	}
}

// WithAnnotator attaches the inline annotation pipeline, correlating every
// ingested event against the configured path mappings and workspace roots.
// Requires WithConfigDir to have been applied first.
func WithAnnotator() func(*Server) error {
	return func(server *Server) error {
		if server.Config == nil {
			return errors.New("server has no configuration, apply WithConfigDir first")
		}
		correlator := annotate.NewCorrelator(server.Config.PathMappings, server.Config.WorkspaceRoots)
		server.Annotator = annotate.NewAnnotator(correlator)
		return nil
	}
}

// WithEventHandler takes a handler function that will be executed on each
// ingested event
func WithEventHandler(handler func(event domain.LogEvent)) func(*Server) error {
	return func(server *Server) error {
		if server.OnEvent != nil {
			return errors.New("server already has an event handler defined")
		}
		server.OnEvent = handler
		return nil
	}
}

// WithSessionHandler takes a handler function that will be executed on each
// session connect and disconnect
func WithSessionHandler(handler func(session *Session, up bool)) func(*Server) error {
	return func(server *Server) error {
		if server.OnSession != nil {
			return errors.New("server already has a session handler defined")
		}
		server.OnSession = handler
		return nil
	}
}

// WithLogger replaces the diagnostic logger.
func WithLogger(logger *logrus.Logger) func(*Server) error {
	return func(server *Server) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		server.Logger = logger
		return nil
	}
}

// WithMaxLogEntries replaces the store with one bounded to the given
// capacity. Useful for embedding the server without a config directory.
func WithMaxLogEntries(maxEntries int) func(*Server) error {
	return func(server *Server) error {
		server.Store = NewStore(maxEntries)
		return nil
	}
}

// CLIENT OPTIONS

// ClientWithCapabilities sets the runtime capabilities of the client.
func ClientWithCapabilities(capabilities Capabilities) func(*Client) error {
	return func(client *Client) error {
		client.Capabilities = capabilities
		return nil
	}
}

// ClientWithReconnectDelay sets the fixed delay between a disconnect and the
// next connection attempt.
func ClientWithReconnectDelay(delay time.Duration) func(*Client) error {
	return func(client *Client) error {
		if delay <= 0 {
			return errors.New("reconnect delay must be positive")
		}
		client.ReconnectDelay = delay
		return nil
	}
}

// ClientWithCaptureOptions sets the initial serialization limits. The host
// may still override them through a config broadcast.
func ClientWithCaptureOptions(options serialize.Options) func(*Client) error {
	return func(client *Client) error {
		client.captureOptions = options
		return nil
	}
}
