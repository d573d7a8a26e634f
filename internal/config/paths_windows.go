//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	programData := os.Getenv("ProgramData")
	return []string{
		"sectionagent.yaml",
		filepath.Join(programData, "SectionAgent", "agent.yaml"),
	}
}
