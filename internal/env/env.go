package env

import (
	"os"
	"path/filepath"
)

// CacheDir returns the per-user depbuild directory. It is not created.
func CacheDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".depbuild"), nil
}

// ArchiveDir returns the directory holding pre-staged source archives,
// creating it with mode 0700 if needed.
func ArchiveDir() (string, error) {
	cacheDir, err := CacheDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(cacheDir, "src")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
