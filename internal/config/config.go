package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration (~/.mailmind/config.toml).
type Config struct {
	IMAP     IMAP     `toml:"imap"`
	Database Database `toml:"database"`
	Model    Model    `toml:"model"`
	Gateway  Gateway  `toml:"gateway"`
	Sync     Sync     `toml:"sync"`
	API      API      `toml:"api"`
	LogPath  string   `toml:"log_path"`
}

// IMAP holds mail server connection settings. A local mail bridge listens on
// localhost with a self-signed certificate, hence InsecureSkipVerify.
type IMAP struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	Username           string `toml:"username"`
	Password           string `toml:"password"`
	TLS                bool   `toml:"tls"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Addr returns the host:port dial address.
func (i IMAP) Addr() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// Database holds SQLite settings.
type Database struct {
	Path string `toml:"path"`
}

// Model holds generative-model API settings.
type Model struct {
	URL            string `toml:"url"`
	Name           string `toml:"name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the model call timeout as a duration.
func (m Model) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Gateway holds extraction gateway settings.
type Gateway struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the gateway call timeout as a duration.
func (g Gateway) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Sync holds scheduler settings. BatchLimit caps how many new messages a
// single folder sync will fetch; 0 means no cap.
type Sync struct {
	IntervalMinutes int      `toml:"interval_minutes"`
	Folders         []string `toml:"folders"`
	BatchLimit      int      `toml:"batch_limit"`
}

// Interval returns the periodic sync interval as a duration.
func (s Sync) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// API holds HTTP API settings.
type API struct {
	ListenAddr string `toml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".mailmind")
	return &Config{
		IMAP: IMAP{
			Host:               "127.0.0.1",
			Port:               1143,
			TLS:                true,
			InsecureSkipVerify: true,
		},
		Database: Database{Path: filepath.Join(dataDir, "mailmind.db")},
		Model: Model{
			URL:            "http://localhost:11434",
			Name:           "qwen2.5:14b",
			TimeoutSeconds: 120,
		},
		Gateway: Gateway{
			URL:            "http://localhost:8250",
			TimeoutSeconds: 600,
		},
		Sync: Sync{
			IntervalMinutes: 5,
			Folders:         []string{"INBOX"},
		},
		API:     API{ListenAddr: "127.0.0.1:8400"},
		LogPath: filepath.Join(dataDir, "mailmindd.log"),
	}
}

// Load reads config from the given path, layered over defaults. A missing
// file is not an error; defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// DataDir returns the directory holding the database, used for the daemon lock.
func (c *Config) DataDir() string {
	return filepath.Dir(c.Database.Path)
}
