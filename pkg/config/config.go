// Package config holds rspd's on-disk defaults, grounded on delve's
// pkg/config: a small YAML file under the user's home directory, read once
// at startup and mostly overridden by CLI flags.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  = ".rspd"
	configFile = "config.yml"
)

// Config defines the options a headless rspd deployment may want fixed
// without repeating flags on every invocation.
type Config struct {
	// Host is the default bind address for `rspd replay` when --host is
	// not given.
	Host string `yaml:"host"`
	// Port is the default TCP port when --port is not given.
	Port int `yaml:"port"`
	// LogOutput is the default --log-output component list used when
	// --log is set without --log-output.
	LogOutput string `yaml:"log-output"`
	// RegisterWidthOverride is read from the config file, but nothing in
	// rspd consults it: register widths always come from the capability's
	// own per-register widths, whatever value is set here.
	RegisterWidthOverride int `yaml:"register-width-override,omitempty"`
}

// defaultConfig matches spec.md §6's stated CLI defaults.
func defaultConfig() Config {
	return Config{Host: "localhost", Port: 1234, LogOutput: "session"}
}

// LoadConfig reads $HOME/.rspd/config.yml, creating it with defaults on
// first run. A missing or unreadable file is tolerated: LoadConfig falls
// back to defaultConfig rather than failing startup over an optional file.
func LoadConfig() *Config {
	if err := createConfigPath(); err != nil {
		fmt.Fprintf(os.Stderr, "rspd: could not create config directory: %v\n", err)
		c := defaultConfig()
		return &c
	}
	fullPath, err := configFilePath(configFile)
	if err != nil {
		c := defaultConfig()
		return &c
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if err := writeDefaultConfig(fullPath); err != nil {
			fmt.Fprintf(os.Stderr, "rspd: could not write default config: %v\n", err)
		}
		c := defaultConfig()
		return &c
	}

	c := defaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		fmt.Fprintf(os.Stderr, "rspd: could not parse config file: %v\n", err)
		c = defaultConfig()
	}
	return &c
}

func writeDefaultConfig(fullPath string) error {
	d := defaultConfig()
	out, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(fullPath, out, 0644)
}

func createConfigPath() error {
	dir, err := configFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

func configFilePath(file string) (string, error) {
	home := "."
	if usr, err := user.Current(); err == nil {
		home = usr.HomeDir
	}
	return path.Join(home, configDir, file), nil
}
