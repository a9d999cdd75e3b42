// Package upload turns raw upload bytes into a stored photo: decode, score,
// optionally sharpen and re-encode, then write the object and the record.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stevecastle/galleria/analysiscache"
	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/imagecodec"
	"github.com/stevecastle/galleria/logging"
	"github.com/stevecastle/galleria/photos"
	"github.com/stevecastle/galleria/storage"
)

var (
	ErrMissingFields = errors.New("title, description and image are required")
	ErrTooLarge      = errors.New("image exceeds upload size limit")
	// ErrUploadFailed wraps store and database failures. The Prepared value
	// is left intact so Submit can be retried.
	ErrUploadFailed = errors.New("upload failed")
)

const DefaultMaxBytes = 20 << 20

type Config struct {
	MaxBytes    int64
	MaxPixels   int // width*height limit; 0 means imagecodec.DefaultMaxPixels
	JPEGQuality int
	KeyPrefix   string
}

// PhotoStore is the part of photos.Store the orchestrator needs.
type PhotoStore interface {
	Create(ctx context.Context, np photos.NewPhoto) (photos.Photo, error)
	Delete(ctx context.Context, id, userID string) (photos.Photo, error)
}

type Service struct {
	cfg        Config
	store      storage.Store
	photos     PhotoStore
	cache      analysiscache.Cache
	classifier *focus.Classifier
}

// New wires the orchestrator. A nil cache disables result caching and a nil
// classifier uses the default thresholds.
func New(cfg Config, store storage.Store, ps PhotoStore, cache analysiscache.Cache, classifier *focus.Classifier) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = imagecodec.DefaultMaxPixels
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = imagecodec.DefaultJPEGQuality
	}
	if cache == nil {
		cache = analysiscache.Nop{}
	}
	if classifier == nil {
		classifier = focus.NewClassifier(focus.DefaultConfig())
	}
	return &Service{cfg: cfg, store: store, photos: ps, cache: cache, classifier: classifier}
}

func (s *Service) Classifier() *focus.Classifier { return s.classifier }

// Decode applies the service's byte and pixel limits to data before
// decoding it.
func (s *Service) Decode(data []byte) (*imagecodec.Decoded, error) {
	if len(data) == 0 {
		return nil, ErrMissingFields
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return imagecodec.DecodeLimit(data, s.cfg.MaxPixels)
}

type Input struct {
	Filename  string
	MediaType string
	Data      []byte
	Sharpen   bool
}

// Prepared holds the bytes that will be sent and the analysis of exactly
// those bytes.
type Prepared struct {
	Filename  string
	MediaType string
	Data      []byte
	Sharpened bool
	// Original is the analysis of the bytes as uploaded. Result equals it
	// unless the image was sharpened.
	Original focus.Result
	Result   focus.Result
	Width    int
	Height   int
}

// Prepare decodes and scores the upload, sharpening it first when asked.
func (s *Service) Prepare(ctx context.Context, in Input) (*Prepared, error) {
	dec, err := s.Decode(in.Data)
	if err != nil {
		return nil, err
	}
	orig := s.analyze(ctx, in.Data, dec)

	p := &Prepared{
		Filename:  in.Filename,
		MediaType: dec.MediaType,
		Data:      in.Data,
		Original:  orig,
		Result:    orig,
		Width:     dec.Surface.Rect.Dx(),
		Height:    dec.Surface.Rect.Dy(),
	}
	if !in.Sharpen {
		return p, nil
	}

	sharp := focus.Sharpen(dec.Surface)
	out, mediaType, err := imagecodec.Encode(sharp, dec.MediaType, s.cfg.JPEGQuality)
	if err != nil {
		return nil, err
	}
	redec, err := imagecodec.DecodeLimit(out, s.cfg.MaxPixels)
	if err != nil {
		return nil, fmt.Errorf("decode sharpened image: %w", err)
	}
	p.Data = out
	p.MediaType = mediaType
	p.Sharpened = true
	p.Result = s.analyze(ctx, out, redec)
	logging.L().Debug("sharpened upload",
		zap.String("filename", in.Filename),
		zap.Float64("score_before", orig.Score),
		zap.Float64("score_after", p.Result.Score))
	return p, nil
}

// analyze scores dec, consulting the cache for data first. Cache failures
// only cost a recomputation.
func (s *Service) analyze(ctx context.Context, data []byte, dec *imagecodec.Decoded) focus.Result {
	key := analysiscache.Key(data, s.classifier.Config().MaxScoreWidth)
	hit, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.L().Warn("analysis cache get failed", zap.Error(err))
	}
	if hit != nil {
		res := *hit
		res.IsBlurred = !res.Degenerate && s.classifier.IsBlurred(res.Score)
		return res
	}

	res := s.classifier.Analyze(dec.Surface)
	if err := s.cache.Set(ctx, key, res); err != nil {
		logging.L().Warn("analysis cache set failed", zap.Error(err))
	}
	return res
}

type Meta struct {
	UserID      string
	Title       string
	Description string
	Location    *photos.Location
}

// Store writes the prepared bytes to the object store without creating a
// record. It returns the reference URL and the object key.
func (s *Service) Store(ctx context.Context, p *Prepared, userID string) (url, key string, err error) {
	if p == nil || len(p.Data) == 0 {
		return "", "", ErrMissingFields
	}
	key = storage.Key(s.cfg.KeyPrefix, userID, imagecodec.ExtensionFor(p.Filename, p.MediaType))
	url, err = s.store.Put(ctx, key, p.MediaType, p.Data)
	if err != nil {
		return "", "", fmt.Errorf("%w: store object: %v", ErrUploadFailed, err)
	}
	return url, key, nil
}

// Submit stores the object and then the photo record. If the record cannot
// be written the object is removed again.
func (s *Service) Submit(ctx context.Context, p *Prepared, meta Meta) (photos.Photo, error) {
	if p == nil || len(p.Data) == 0 ||
		strings.TrimSpace(meta.Title) == "" || strings.TrimSpace(meta.Description) == "" {
		return photos.Photo{}, ErrMissingFields
	}

	url, key, err := s.Store(ctx, p, meta.UserID)
	if err != nil {
		return photos.Photo{}, err
	}

	photo, err := s.photos.Create(ctx, photos.NewPhoto{
		UserID:      meta.UserID,
		Title:       strings.TrimSpace(meta.Title),
		Description: strings.TrimSpace(meta.Description),
		Src:         url,
		ObjectKey:   key,
		MediaType:   p.MediaType,
		Location:    meta.Location,
		FocusScore:  p.Result.Score,
		Blurred:     p.Result.IsBlurred,
		Sharpened:   p.Sharpened,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			logging.L().Warn("failed to remove orphaned object",
				zap.String("key", key), zap.Error(derr))
		}
		return photos.Photo{}, fmt.Errorf("%w: save record: %v", ErrUploadFailed, err)
	}

	logging.L().Info("photo uploaded",
		zap.String("id", photo.ID),
		zap.String("user", meta.UserID),
		zap.Float64("score", p.Result.Score),
		zap.Bool("sharpened", p.Sharpened))
	return photo, nil
}

// Delete removes the record and then its object. A missing object is not
// an error.
func (s *Service) Delete(ctx context.Context, photoID, userID string) (photos.Photo, error) {
	photo, err := s.photos.Delete(ctx, photoID, userID)
	if err != nil {
		return photos.Photo{}, err
	}
	if photo.ObjectKey != "" {
		if err := s.store.Delete(ctx, photo.ObjectKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logging.L().Warn("failed to delete object",
				zap.String("key", photo.ObjectKey), zap.Error(err))
		}
	}
	return photo, nil
}
