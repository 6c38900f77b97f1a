// Package skills embeds the README of every skill.
package skills

import (
	"embed"
	"fmt"
)

//go:embed skill_*/README.md
var docs embed.FS

// Readme returns the README at path, relative to this directory.
func Readme(path string) (string, error) {
	data, err := docs.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read skill readme %s: %w", path, err)
	}
	return string(data), nil
}
