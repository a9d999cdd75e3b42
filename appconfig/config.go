package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/platform"
)

// Analysis tunes the focus classifier.
type Analysis struct {
	BlurThreshold float64 `json:"blurThreshold"`
	MaxScoreWidth int     `json:"maxScoreWidth"`
}

// Focus converts the section into a classifier config.
func (a Analysis) Focus() focus.Config {
	return focus.Config{BlurThreshold: a.BlurThreshold, MaxScoreWidth: a.MaxScoreWidth}
}

// Storage selects where uploaded image bytes go.
type Storage struct {
	Driver        string `json:"driver"` // "disk" or "s3"
	Dir           string `json:"dir"`
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"`
	Prefix        string `json:"prefix"`
	PublicBaseURL string `json:"publicBaseUrl"`
	UsePathStyle  bool   `json:"usePathStyle"`

	// Static credentials; usually supplied through the environment.
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// Redis configures the optional analysis cache. An empty Addr disables it.
type Redis struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttlSeconds"`
}

// TTL returns the cache entry lifetime.
func (r Redis) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// Upload limits what the server accepts.
type Upload struct {
	MaxBytes    int64 `json:"maxBytes"`
	MaxPixels   int   `json:"maxPixels"`
	JPEGQuality int   `json:"jpegQuality"`
}

// Config holds application configuration.
type Config struct {
	Listen string `json:"listen"`
	DBPath string `json:"dbPath"`

	// JWT Secret for authentication
	JWTSecret string `json:"jwtSecret"`

	// "release" for JSON logs, anything else for console output
	LogMode     string `json:"logMode"`
	OpenBrowser bool   `json:"openBrowser"`

	Analysis Analysis `json:"analysis"`
	Storage  Storage  `json:"storage"`
	Redis    Redis    `json:"redis"`
	Upload   Upload   `json:"upload"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultDBPath returns the default database path.
// Uses the platform-specific data directory.
func DefaultDBPath() string {
	return filepath.Join(platform.GetDataDir(), "gallery.db")
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// defaultUploadDir is where the disk store keeps image bytes.
func defaultUploadDir() string {
	return filepath.Join(platform.GetCacheDir(), "uploads")
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	fc := focus.DefaultConfig()
	return Config{
		Listen:    ":5001",
		DBPath:    DefaultDBPath(),
		JWTSecret: uuid.New().String(),
		LogMode:   "debug",
		Analysis: Analysis{
			BlurThreshold: fc.BlurThreshold,
			MaxScoreWidth: fc.MaxScoreWidth,
		},
		Storage: Storage{
			Driver: "disk",
			Dir:    defaultUploadDir(),
			Prefix: "photo-gallery",
			Region: "us-east-1",
		},
		Redis: Redis{
			TTLSeconds: 86400,
		},
		Upload: Upload{
			MaxBytes:    20 << 20,
			MaxPixels:   50_000_000,
			JPEGQuality: 92,
		},
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// fillDefaults copies defaults into zero fields and reports whether a
// field that must persist (secret, db path) was generated.
func fillDefaults(c *Config) bool {
	def := defaultConfig()
	needsSave := false

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
		needsSave = true
	}
	if c.JWTSecret == "" {
		c.JWTSecret = def.JWTSecret
		needsSave = true
	}
	if c.LogMode == "" {
		c.LogMode = def.LogMode
	}
	if c.Analysis.BlurThreshold == 0 {
		c.Analysis.BlurThreshold = def.Analysis.BlurThreshold
	}
	if c.Analysis.MaxScoreWidth <= 0 {
		c.Analysis.MaxScoreWidth = def.Analysis.MaxScoreWidth
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = def.Storage.Dir
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = def.Storage.Prefix
	}
	if c.Storage.Region == "" {
		c.Storage.Region = def.Storage.Region
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = def.Redis.TTLSeconds
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = def.Upload.MaxBytes
	}
	if c.Upload.MaxPixels <= 0 {
		c.Upload.MaxPixels = def.Upload.MaxPixels
	}
	if c.Upload.JPEGQuality <= 0 || c.Upload.JPEGQuality > 100 {
		c.Upload.JPEGQuality = def.Upload.JPEGQuality
	}
	return needsSave
}

// applyEnv overrides fields from the environment. Credentials are only
// ever read from here so they never land in config.json.
func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("GALLERIA_LISTEN", &c.Listen)
	str("GALLERIA_DB_PATH", &c.DBPath)
	str("GALLERIA_JWT_SECRET", &c.JWTSecret)
	str("GALLERIA_LOG_MODE", &c.LogMode)
	str("GALLERIA_STORAGE_DRIVER", &c.Storage.Driver)
	str("GALLERIA_S3_BUCKET", &c.Storage.Bucket)
	str("GALLERIA_S3_REGION", &c.Storage.Region)
	str("GALLERIA_S3_ENDPOINT", &c.Storage.Endpoint)
	str("GALLERIA_PUBLIC_BASE_URL", &c.Storage.PublicBaseURL)
	str("AWS_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	str("GALLERIA_REDIS_ADDR", &c.Redis.Addr)
	str("GALLERIA_REDIS_PASSWORD", &c.Redis.Password)
	if v := os.Getenv("GALLERIA_BLUR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f != 0 {
			c.Analysis.BlurThreshold = f
		}
	}
	if c.Storage.Bucket != "" && os.Getenv("GALLERIA_STORAGE_DRIVER") == "" && c.Storage.Driver == "disk" {
		c.Storage.Driver = "s3"
	}
}

// Load reads .env (if present), the config file and environment
// overrides, and updates the in-memory config. It returns the config and
// the config file path. A missing config file is created with defaults.
func Load() (Config, string, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: failed to read .env: %v\n", err)
	}

	path := getConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}

	var c Config
	needsSave := false
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		c = defaultConfig()
		needsSave = true
	case err != nil:
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return Config{}, path, fmt.Errorf("failed to parse config JSON: %w", err)
		}
		needsSave = fillDefaults(&c)
	}

	if needsSave {
		if _, saveErr := Save(c); saveErr != nil {
			// Keep going with the in-memory config
			fmt.Printf("Warning: failed to save config: %v\n", saveErr)
		}
	}

	applyEnv(&c)

	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0755); err != nil {
		return Config{}, path, fmt.Errorf("failed to create database directory %s: %w", filepath.Dir(c.DBPath), err)
	}

	Set(c)
	return c, path, nil
}

// Save writes the config to disk, creating the directory as needed.
// Keys in the existing file that Config does not know about are kept.
func Save(c Config) (string, error) {
	path := getConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %w", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %w", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %w", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %w", err)
	}
	if err := os.WriteFile(path, mergedData, 0600); err != nil {
		return path, fmt.Errorf("failed to write config file: %w", err)
	}
	Set(c)
	return path, nil
}
