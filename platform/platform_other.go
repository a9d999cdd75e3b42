//go:build !linux && !darwin && !windows

package platform

func getDataDir() string {
	return homeJoin("." + AppName)
}

func getCacheDir() string {
	return homeJoin("."+AppName, "cache")
}
