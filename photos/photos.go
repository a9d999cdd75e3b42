// Package photos stores per-user photo metadata in SQLite.
package photos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("photo not found")
	ErrForbidden = errors.New("photo belongs to another user")
)

// Location is where the photo was taken.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Photo represents a row from the photos table
type Photo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Src         string    `json:"src"`
	ObjectKey   string    `json:"-"`
	MediaType   string    `json:"mediaType"`
	Location    *Location `json:"location"`
	FocusScore  float64   `json:"focusScore"`
	Blurred     bool      `json:"blurred"`
	Sharpened   bool      `json:"sharpened"`
	CreatedAt   time.Time `json:"-"`
}

// MarshalJSON adds createdAt as RFC 3339 and unix seconds so clients can
// sort without parsing.
func (p Photo) MarshalJSON() ([]byte, error) {
	type Alias Photo
	return json.Marshal(&struct {
		Alias
		CreatedAt     string `json:"createdAt"`
		CreatedAtUnix int64  `json:"createdAtUnix"`
	}{
		Alias:         Alias(p),
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339),
		CreatedAtUnix: p.CreatedAt.Unix(),
	})
}

// NewPhoto is what Create needs; ID and CreatedAt are assigned by the store.
type NewPhoto struct {
	UserID      string
	Title       string
	Description string
	Src         string
	ObjectKey   string
	MediaType   string
	Location    *Location
	FocusScore  float64
	Blurred     bool
	Sharpened   bool
}

// Store persists photos.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps db. Call InitializeSchema first.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// InitializeSchema creates the photos table and its index.
func InitializeSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS photos (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			src TEXT NOT NULL,
			object_key TEXT NOT NULL DEFAULT '',
			media_type TEXT NOT NULL DEFAULT '',
			lat REAL,
			lng REAL,
			focus_score REAL NOT NULL DEFAULT 0,
			blurred INTEGER NOT NULL DEFAULT 0,
			sharpened INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_photos_user_created ON photos(user_id, created_at DESC)",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("initialize photos schema: %w", err)
		}
	}
	return nil
}

const selectColumns = `id, user_id, title, description, src, object_key, media_type,
	lat, lng, focus_score, blurred, sharpened, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(r rowScanner) (Photo, error) {
	var (
		p         Photo
		lat, lng  sql.NullFloat64
		created   int64
		blurred   int
		sharpened int
	)
	if err := r.Scan(&p.ID, &p.UserID, &p.Title, &p.Description, &p.Src, &p.ObjectKey, &p.MediaType,
		&lat, &lng, &p.FocusScore, &blurred, &sharpened, &created); err != nil {
		return Photo{}, err
	}
	if lat.Valid && lng.Valid {
		p.Location = &Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	p.Blurred = blurred != 0
	p.Sharpened = sharpened != 0
	p.CreatedAt = time.Unix(0, created)
	return p, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Create inserts a photo with a fresh ID and the server's timestamp.
func (s *Store) Create(ctx context.Context, np NewPhoto) (Photo, error) {
	p := Photo{
		ID:          uuid.New().String(),
		UserID:      np.UserID,
		Title:       np.Title,
		Description: np.Description,
		Src:         np.Src,
		ObjectKey:   np.ObjectKey,
		MediaType:   np.MediaType,
		Location:    np.Location,
		FocusScore:  np.FocusScore,
		Blurred:     np.Blurred,
		Sharpened:   np.Sharpened,
		CreatedAt:   s.now(),
	}

	var lat, lng sql.NullFloat64
	if p.Location != nil {
		lat = sql.NullFloat64{Float64: p.Location.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: p.Location.Lng, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO photos (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Title, p.Description, p.Src, p.ObjectKey, p.MediaType,
		lat, lng, p.FocusScore, boolInt(p.Blurred), boolInt(p.Sharpened), p.CreatedAt.UnixNano())
	if err != nil {
		return Photo{}, fmt.Errorf("insert photo: %w", err)
	}
	return p, nil
}

// escapeLikePattern escapes LIKE wildcards in s.
func escapeLikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ListByUser returns the user's photos, newest first. A non-empty query
// keeps only photos whose title contains it, ignoring case.
func (s *Store) ListByUser(ctx context.Context, userID, query string) ([]Photo, error) {
	q := "SELECT " + selectColumns + " FROM photos WHERE user_id = ?"
	args := []any{userID}
	if query = strings.TrimSpace(query); query != "" {
		q += ` AND lower(title) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLikePattern(strings.ToLower(query))+"%")
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	photos := []Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// Get returns one photo.
func (s *Store) Get(ctx context.Context, id string) (Photo, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM photos WHERE id = ?", id)
	p, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Photo{}, ErrNotFound
	}
	if err != nil {
		return Photo{}, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

// Delete removes a photo owned by userID and returns the removed row so
// the caller can clean up its stored object.
func (s *Store) Delete(ctx context.Context, id, userID string) (Photo, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Photo{}, err
	}
	if p.UserID != userID {
		return Photo{}, ErrForbidden
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return Photo{}, fmt.Errorf("delete photo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Photo{}, ErrNotFound
	}
	return p, nil
}

// CountByUser returns how many photos the user has.
func (s *Store) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos WHERE user_id = ?", userID).Scan(&n)
	return n, err
}
