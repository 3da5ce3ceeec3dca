package workspace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePath checks that path is a clean relative path that stays inside the workspace.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative, got absolute path: %s", path)
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("path contains invalid components: %s", path)
	}
	if path == ".." || strings.HasPrefix(path, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path cannot reference parent directories: %s", path)
	}
	return nil
}

// ResolvePath joins a validated relative path onto base.
func ResolvePath(base, rel string) (string, error) {
	if err := ValidatePath(rel); err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute base path: %w", err)
	}
	absFull, err := filepath.Abs(filepath.Join(base, rel))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute full path: %w", err)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", rel)
	}
	return absFull, nil
}
