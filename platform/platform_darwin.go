//go:build darwin

package platform

func getDataDir() string {
	return homeJoin("Library", "Application Support", AppDisplayName)
}

func getCacheDir() string {
	return homeJoin("Library", "Caches", AppName)
}
