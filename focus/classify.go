package focus

import (
	"image"
	"math"
)

const (
	// DefaultBlurThreshold is the score below which a photo is flagged
	// as possibly blurry.
	DefaultBlurThreshold = 50.0
	// DefaultMaxScoreWidth caps the width of the surface that is scored.
	DefaultMaxScoreWidth = 512
)

// Config tunes the classifier. Zero fields fall back to the defaults. A
// negative BlurThreshold turns flagging off, since scores are never
// negative.
type Config struct {
	BlurThreshold float64 `json:"blurThreshold"`
	MaxScoreWidth int     `json:"maxScoreWidth"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		BlurThreshold: DefaultBlurThreshold,
		MaxScoreWidth: DefaultMaxScoreWidth,
	}
}

func (c Config) withDefaults() Config {
	if c.BlurThreshold == 0 {
		c.BlurThreshold = DefaultBlurThreshold
	}
	if c.MaxScoreWidth <= 0 {
		c.MaxScoreWidth = DefaultMaxScoreWidth
	}
	return c
}

// Result is what the caller gets back for one surface. Whether to warn
// the user about a blurry photo is up to the caller.
type Result struct {
	Score     float64 `json:"score"`
	IsBlurred bool    `json:"isBlurred"`
	// Dimensions of the surface that was actually scored.
	Width      int  `json:"width"`
	Height     int  `json:"height"`
	Degenerate bool `json:"degenerate,omitempty"`
}

// DisplayScore is the score rounded to the nearest integer.
func (r Result) DisplayScore() int {
	return int(math.Round(r.Score))
}

// Classifier scores surfaces against a fixed configuration.
type Classifier struct {
	cfg Config
}

// NewClassifier returns a classifier for cfg.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (c *Classifier) Config() Config {
	return c.cfg
}

// IsBlurred reports whether score falls below the threshold.
func (c *Classifier) IsBlurred(score float64) bool {
	return score < c.cfg.BlurThreshold
}

// Analyze downscales src to the configured width cap, scores it and
// applies the threshold. Surfaces too small to have interior pixels
// score 0 and are never flagged.
func (c *Classifier) Analyze(src *image.NRGBA) Result {
	scaled := Downscale(src, c.cfg.MaxScoreWidth)
	lum := Grayscale(scaled)

	res := Result{Width: lum.Width, Height: lum.Height}
	if lum.Width <= 2 || lum.Height <= 2 {
		res.Degenerate = true
		return res
	}
	res.Score = LaplacianVariance(lum)
	res.IsBlurred = c.IsBlurred(res.Score)
	return res
}
