package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stevecastle/galleria/auth"
	"github.com/stevecastle/galleria/focus"
	"github.com/stevecastle/galleria/logging"
	"github.com/stevecastle/galleria/photos"
	"github.com/stevecastle/galleria/selection"
	"github.com/stevecastle/galleria/stream"
	"github.com/stevecastle/galleria/upload"
)

const multipartMemory = 32 << 20

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func signupHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := readJSONBody(r, &req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		user, err := deps.Auth.Register(req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		token, err := deps.Auth.IssueToken(user)
		if err != nil {
			writeError(w, r, err)
			return
		}
		logging.L().Info("user registered", zap.String("user", user.ID))
		setTokenCookie(w, r, token, int(auth.DefaultTokenTTL.Seconds()))
		writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
	}
}

func loginHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := readJSONBody(r, &req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		token, _, err := deps.Auth.Login(req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		setTokenCookie(w, r, token, int(auth.DefaultTokenTTL.Seconds()))
		writeJSON(w, http.StatusOK, tokenResponse{Token: token})
	}
}

// imageUpload is the image part of a multipart request.
type imageUpload struct {
	Filename string
	Data     []byte
}

// readImageForm parses a multipart form and reads its "image" part.
func readImageForm(w http.ResponseWriter, r *http.Request, deps *Dependencies) (*imageUpload, error) {
	if deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", upload.ErrMissingFields, err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, upload.ErrMissingFields
		}
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &imageUpload{Filename: header.Filename, Data: data}, nil
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

type analysisResponse struct {
	Score        float64          `json:"score"`
	DisplayScore int              `json:"displayScore"`
	IsBlurred    bool             `json:"isBlurred"`
	Width        int              `json:"width"`
	Height       int              `json:"height"`
	Sharpened    bool             `json:"sharpened,omitempty"`
	Selection    selection.Ticket `json:"selection"`
	Current      bool             `json:"current"`
}

func newAnalysisResponse(res focus.Result, ticket selection.Ticket, current bool) analysisResponse {
	return analysisResponse{
		Score:        res.Score,
		DisplayScore: res.DisplayScore(),
		IsBlurred:    res.IsBlurred,
		Width:        res.Width,
		Height:       res.Height,
		Selection:    ticket,
		Current:      current,
	}
}

// analyzeHandler scores a candidate photo. Each request is a new selection
// for the caller; a response that finishes after a newer selection is
// still returned but not recorded as current.
func analyzeHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDOf(r)
		tracker := deps.Selections.For(userID)
		ticket := tracker.Select()

		img, err := readImageForm(w, r, deps)
		if err != nil {
			writeError(w, r, err)
			return
		}
		dec, err := deps.Uploads.Decode(img.Data)
		if err != nil {
			writeError(w, r, err)
			return
		}
		surface := dec.Surface
		sharpen := formBool(r, "sharpen")
		if sharpen {
			surface = focus.Sharpen(surface)
		}

		outcome := <-tracker.Evaluate(r.Context(), ticket, surface, deps.Classifier)
		resp := newAnalysisResponse(outcome.Result, ticket, outcome.Accepted)
		resp.Sharpened = sharpen
		if outcome.Accepted {
			stream.Publish(userID, stream.EventAnalysis, resp)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func currentAnalysisHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ticket, ok := deps.Selections.For(userIDOf(r)).Current()
		if !ok {
			http.Error(w, "No photo selected", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, newAnalysisResponse(res, ticket, true))
	}
}

// uploadHandler stores an image without creating a gallery record.
func uploadHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		img, err := readImageForm(w, r, deps)
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := deps.Uploads.Prepare(r.Context(), upload.Input{
			Filename: img.Filename,
			Data:     img.Data,
			Sharpen:  formBool(r, "sharpen"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		url, _, err := deps.Uploads.Store(r.Context(), p, userIDOf(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"secure_url": url,
			"score":      p.Result.Score,
			"isBlurred":  p.Result.IsBlurred,
		})
	}
}

// parseLocation reads optional lat/lng form fields. Both must be present
// for a location to be recorded.
func parseLocation(r *http.Request) (*photos.Location, error) {
	latStr := strings.TrimSpace(r.FormValue("lat"))
	lngStr := strings.TrimSpace(r.FormValue("lng"))
	if latStr == "" || lngStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude %q", latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("invalid longitude %q", lngStr)
	}
	return &photos.Location{Lat: lat, Lng: lng}, nil
}

// createPhotoHandler adds a photo to the caller's gallery. A blurry,
// unsharpened photo is refused with 409 and its analysis until the client
// resubmits with confirmBlurry.
func createPhotoHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDOf(r)
		img, err := readImageForm(w, r, deps)
		if err != nil {
			writeError(w, r, err)
			return
		}
		title := r.FormValue("title")
		description := r.FormValue("description")
		if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
			writeError(w, r, upload.ErrMissingFields)
			return
		}
		loc, err := parseLocation(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		p, err := deps.Uploads.Prepare(r.Context(), upload.Input{
			Filename: img.Filename,
			Data:     img.Data,
			Sharpen:  formBool(r, "sharpen"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		if p.Result.IsBlurred && !p.Sharpened && !formBool(r, "confirmBlurry") {
			writeJSON(w, http.StatusConflict, newAnalysisResponse(p.Result, 0, false))
			return
		}

		photo, err := deps.Uploads.Submit(r.Context(), p, upload.Meta{
			UserID:      userID,
			Title:       title,
			Description: description,
			Location:    loc,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		deps.Selections.For(userID).Clear()
		stream.Publish(userID, stream.EventPhotoCreated, photo)
		writeJSON(w, http.StatusCreated, photo)
	}
}

func listPhotosHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Photos.ListByUser(r.Context(), userIDOf(r), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func suggestHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		list, err := deps.Photos.ListByUser(r.Context(), userIDOf(r), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		titles := photos.SuggestTitles(list, q, photos.DefaultSuggestionLimit)
		writeJSON(w, http.StatusOK, titles)
	}
}

func deletePhotoHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDOf(r)
		id := r.PathValue("id")
		if _, err := deps.Uploads.Delete(r.Context(), id, userID); err != nil {
			writeError(w, r, err)
			return
		}
		stream.Publish(userID, stream.EventPhotoDeleted, map[string]string{"id": id})
		w.WriteHeader(http.StatusNoContent)
	}
}

type accountResponse struct {
	ID         string          `json:"id"`
	Email      string          `json:"email"`
	CreatedAt  int64           `json:"createdAt"`
	PhotoCount int             `json:"photoCount"`
	Analysis   selection.Stats `json:"analysis"`
}

// meHandler describes the caller's account.
func meHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDOf(r)
		u, err := deps.Auth.GetUser(userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := deps.Photos.CountByUser(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, accountResponse{
			ID:         u.ID,
			Email:      u.Email,
			CreatedAt:  u.CreatedAt,
			PhotoCount: n,
			Analysis:   deps.Selections.For(userID).Stats(),
		})
	}
}

// deleteAccountHandler removes every photo the caller owns, then the
// account itself.
func deleteAccountHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userIDOf(r)
		list, err := deps.Photos.ListByUser(r.Context(), userID, "")
		if err != nil {
			writeError(w, r, err)
			return
		}
		for _, p := range list {
			if _, err := deps.Uploads.Delete(r.Context(), p.ID, userID); err != nil && !errors.Is(err, photos.ErrNotFound) {
				writeError(w, r, err)
				return
			}
		}
		if err := deps.Auth.DeleteUser(userID); err != nil {
			writeError(w, r, err)
			return
		}
		deps.Selections.Forget(userID)
		setTokenCookie(w, r, "", -1)
		logging.L().Info("account deleted", zap.String("user", userID), zap.Int("photos", len(list)))
		w.WriteHeader(http.StatusNoContent)
	}
}
