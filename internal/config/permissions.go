// ABOUTME: Config file permission checks; the file carries LMS admin credentials.
package config

import (
	"fmt"
	"os"
	"strings"
)

// CheckConfigPermissions refuses config files readable or writable beyond the
// daemon user. Group-readable files pass with a warning since some deployments
// share a config group; any access for others is an error.
func CheckConfigPermissions(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("config path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat config %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("config %s must be a regular file", path)
	}

	mode := info.Mode().Perm()
	switch {
	case mode&0o400 == 0:
		return "", fmt.Errorf("config %s is not readable by owner (mode %04o)", path, mode)
	case mode&0o007 != 0:
		return "", fmt.Errorf("config %s is accessible by others (mode %04o); it holds target admin credentials", path, mode)
	case mode&0o030 != 0:
		return "", fmt.Errorf("config %s is group-writable or group-executable (mode %04o)", path, mode)
	case mode&0o040 != 0:
		return fmt.Sprintf("config %s is group-readable (mode %04o); consider chmod 0600", path, mode), nil
	}
	return "", nil
}
