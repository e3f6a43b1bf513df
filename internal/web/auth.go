package web

import (
	"net/http"
	"path"
	"strings"
	"time"
)

// sessionToken reads the portal session from the cookie or a bearer header.
func sessionToken(r *http.Request, cookie string) string {
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

// unguarded paths never need a session.
func unguarded(p string) bool {
	switch {
	case p == "/health", p == "/metrics", p == "/favicon.ico":
		return true
	// The corridor board is captured headless, without a session. It shows
	// what /api/now already serves.
	case p == "/board", p == "/board.png":
		return true
	case p == "/api" || strings.HasPrefix(p, "/api/"):
		return true
	case strings.HasPrefix(p, "/assets/"):
		return true
	}
	// Static files are anything with an extension other than .html.
	ext := path.Ext(p)
	return ext != "" && ext != ".html"
}

// authMiddleware sends visitors without a session to /auth. Signed-in
// visitors hitting /auth go home; /auth/callback always passes.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	cookie := s.cfg.Auth.Cookie
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == "/auth/callback" || unguarded(p) {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r, cookie)
		isAuthPage := p == "/auth" || strings.HasPrefix(p, "/auth/")
		switch {
		case isAuthPage && token != "":
			http.Redirect(w, r, "/", http.StatusFound)
		case isAuthPage:
			next.ServeHTTP(w, r)
		case token == "":
			http.Redirect(w, r, "/auth", http.StatusFound)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// handleAuth hands sign-in off to the student portal.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.cfg.Auth.PortalURL, http.StatusFound)
}

// handleAuthCallback stores the session the portal hands back in ?token=.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Redirect(w, r, "/auth", http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.Cookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
	http.Redirect(w, r, "/", http.StatusFound)
}
