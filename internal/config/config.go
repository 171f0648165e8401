// Package config loads server and engine settings from YAML, with
// defaults that match the canonical room layout.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir"`

	Grid  GridConfig  `yaml:"grid"`
	Verse VerseConfig `yaml:"verse"`
	Rooms RoomsConfig `yaml:"rooms"`
}

type GridConfig struct {
	Size         int `yaml:"size"`
	FirstAnchorX int `yaml:"first_anchor_x"`
	FirstAnchorY int `yaml:"first_anchor_y"`
}

type VerseConfig struct {
	MinLen int `yaml:"min_len"`
	MaxLen int `yaml:"max_len"`
}

type RoomsConfig struct {
	InactiveAfterMinutes int `yaml:"inactive_after_minutes"`
	SweepEveryMinutes    int `yaml:"sweep_every_minutes"`
}

// Load reads path if non-empty, otherwise returns defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func Defaults() Config {
	return Config{
		Listen:  ":8080",
		DataDir: "./data",
		Grid: GridConfig{
			Size:         100,
			FirstAnchorX: 45,
			FirstAnchorY: 45,
		},
		Verse: VerseConfig{
			MinLen: 1,
			MaxLen: 30,
		},
		Rooms: RoomsConfig{
			InactiveAfterMinutes: 12 * 60,
			SweepEveryMinutes:    5,
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	d := Defaults()
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = d.Listen
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = d.DataDir
	}
	if c.Grid.Size == 0 {
		c.Grid.Size = d.Grid.Size
	}
	if c.Verse.MinLen == 0 {
		c.Verse.MinLen = d.Verse.MinLen
	}
	if c.Verse.MaxLen == 0 {
		c.Verse.MaxLen = d.Verse.MaxLen
	}
	if c.Rooms.InactiveAfterMinutes == 0 {
		c.Rooms.InactiveAfterMinutes = d.Rooms.InactiveAfterMinutes
	}
	if c.Rooms.SweepEveryMinutes == 0 {
		c.Rooms.SweepEveryMinutes = d.Rooms.SweepEveryMinutes
	}
}

func (c Config) Validate() error {
	if c.Grid.Size <= 0 {
		return fmt.Errorf("grid size must be > 0")
	}
	if c.Grid.FirstAnchorX < 0 || c.Grid.FirstAnchorX >= c.Grid.Size ||
		c.Grid.FirstAnchorY < 0 || c.Grid.FirstAnchorY >= c.Grid.Size {
		return fmt.Errorf("first anchor (%d,%d) outside [0,%d)", c.Grid.FirstAnchorX, c.Grid.FirstAnchorY, c.Grid.Size)
	}
	if c.Verse.MinLen < 1 {
		return fmt.Errorf("verse min_len must be >= 1")
	}
	if c.Verse.MaxLen < c.Verse.MinLen {
		return fmt.Errorf("verse max_len must be >= min_len")
	}
	if c.Verse.MaxLen > c.Grid.Size {
		return fmt.Errorf("verse max_len %d cannot exceed grid size %d", c.Verse.MaxLen, c.Grid.Size)
	}
	if c.Rooms.InactiveAfterMinutes < 0 {
		return fmt.Errorf("rooms inactive_after_minutes must be >= 0")
	}
	if c.Rooms.SweepEveryMinutes < 0 {
		return fmt.Errorf("rooms sweep_every_minutes must be >= 0")
	}
	return nil
}
