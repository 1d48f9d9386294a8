package config

import (
	"fmt"
	"os"
)

// InitConfig writes a fresh default configuration file to the default
// location ($XDG_CONFIG_HOME/gorpcd/config.yaml). It refuses to overwrite
// an existing file unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a fresh default configuration file to path. It
// refuses to overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	return SaveConfig(cfg, path)
}
