//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		"./sectionagent.yaml",
		filepath.Join(home, ".sectionagent", "config.yaml"),
		"/etc/sectionagent/agent.yaml",
	}
}
