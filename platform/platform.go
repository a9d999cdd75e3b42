// Package platform provides OS-specific directory locations.
package platform

import (
	"os"
	"path/filepath"
)

// AppName is the application name used for directory naming
const AppName = "galleria"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "Galleria"

// GetDataDir returns the application data directory holding the config
// file and database.
// Windows: %APPDATA%\Galleria
// macOS: ~/Library/Application Support/Galleria
// Linux: $XDG_DATA_HOME/galleria or ~/.local/share/galleria
func GetDataDir() string {
	if dir := os.Getenv("GALLERIA_DATA_DIR"); dir != "" {
		return dir
	}
	return getDataDir()
}

// GetCacheDir returns the cache directory, used as the default root for
// locally stored uploads.
// Windows: %LOCALAPPDATA%\Galleria\cache
// macOS: ~/Library/Caches/galleria
// Linux: $XDG_CACHE_HOME/galleria or ~/.cache/galleria
func GetCacheDir() string {
	return getCacheDir()
}

// UserHomeDir returns the user's home directory with proper fallbacks.
func UserHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func homeJoin(elem ...string) string {
	return filepath.Join(append([]string{UserHomeDir()}, elem...)...)
}
