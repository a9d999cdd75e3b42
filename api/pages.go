package api

import (
	"net/http"
	"time"

	"github.com/stevecastle/galleria/photos"
	"github.com/stevecastle/galleria/renderer"
)

type galleryPage struct {
	Email  string
	Query  string
	Count  int
	Groups []photos.MonthGroup
}

type addPage struct {
	Email         string
	BlurThreshold float64
}

type loginPage struct {
	Email string
	Error string
}

func emailOf(r *http.Request) string {
	if c, ok := ClaimsFrom(r.Context()); ok {
		return c.Email
	}
	return ""
}

// galleryPageHandler lists the caller's photos grouped by month.
func galleryPageHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		list, err := deps.Photos.ListByUser(r.Context(), userIDOf(r), q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		loc := deps.Location
		if loc == nil {
			loc = time.Local
		}
		renderer.Render(w, "gallery", galleryPage{
			Email:  emailOf(r),
			Query:  q,
			Count:  len(list),
			Groups: photos.GroupByMonth(list, loc),
		})
	}
}

func addPageHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer.Render(w, "add", addPage{
			Email:         emailOf(r),
			BlurThreshold: deps.Classifier.Config().BlurThreshold,
		})
	}
}

// loginPageHandler also handles logout, which just drops the cookie.
func loginPageHandler(deps *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("logout") != "" {
			setTokenCookie(w, r, "", -1)
			if claims, err := deps.Auth.VerifyToken(tokenFromRequest(r)); err == nil {
				deps.Selections.Forget(claims.UserID)
			}
		}
		renderer.Render(w, "login", loginPage{})
	}
}
