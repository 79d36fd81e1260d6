// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Listen  string        `mapstructure:"listen"`
	DataDir string        `mapstructure:"data_dir"`
	MPD     MPDConfig     `mapstructure:"mpd"`
	Library LibraryConfig `mapstructure:"library"`
	Player  PlayerConfig  `mapstructure:"player"`
	Debug   bool          `mapstructure:"debug"`
}

// MPDConfig holds the MPD server connection settings
type MPDConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
}

// LibraryConfig holds the import sources
type LibraryConfig struct {
	MusicDirs  []string `mapstructure:"music_dirs"`
	ExportPath string   `mapstructure:"export_path"`
}

// PlayerConfig holds playback preferences
type PlayerConfig struct {
	LoopQueue  bool `mapstructure:"loop_queue"`
	SampleRate int  `mapstructure:"sample_rate"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:  ":3000",
		DataDir: defaultDataDir(),
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		Library: LibraryConfig{
			MusicDirs: []string{defaultMusicDir()},
		},
		Player: PlayerConfig{
			LoopQueue:  false,
			SampleRate: 44100,
		},
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "lyrebird")
}

func defaultMusicDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Music")
}

// Load loads configuration from file and environment. A missing config
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "lyrebird"))
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix("LYREBIRD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}
