//go:build windows

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	appData := os.Getenv("APPDATA")
	if appData == "" {
		return homeJoin("." + AppName)
	}
	return filepath.Join(appData, AppDisplayName)
}

func getCacheDir() string {
	local := os.Getenv("LOCALAPPDATA")
	if local == "" {
		return filepath.Join(getDataDir(), "cache")
	}
	return filepath.Join(local, AppDisplayName, "cache")
}
