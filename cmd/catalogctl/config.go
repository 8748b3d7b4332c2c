package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultAddress = "http://127.0.0.1:3000"

// settings is what catalogctl remembers between invocations.
type settings struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token,omitempty"`
	CACert  string `yaml:"ca_cert,omitempty"`
}

var cfg settings

func configPath() string {
	if v := os.Getenv("CATALOGCTL_CONFIG"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".catalogctl", "config.yaml")
}

// loadConfig reads the settings file, then lets CATALOG_ADDR, CATALOG_TOKEN
// and CATALOG_CACERT override it for this run only.
func loadConfig() error {
	cfg = settings{Address: defaultAddress}
	data, err := os.ReadFile(configPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("reading %s: %w", configPath(), err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath(), err)
		}
	}
	return nil
}

// env returns the effective settings for this invocation.
func (s settings) env() settings {
	for name, dst := range map[string]*string{
		"CATALOG_ADDR":   &s.Address,
		"CATALOG_TOKEN":  &s.Token,
		"CATALOG_CACERT": &s.CACert,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	return s
}

func saveConfig() error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
