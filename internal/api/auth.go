package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskvault/internal/auth"
)

func (s *Server) handleAuthUser(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" || s.auth == nil {
		writeJSON(c, http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	id, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeJSON(c, http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"authenticated": true,
		"user":          gin.H{"id": id.UserID, "email": id.Email},
	})
}

// handleAuthStart returns the provider URL that begins sign-in. The return
// address is the redirect_to query parameter, then the configured redirect,
// then the root of this host.
func (s *Server) handleAuthStart(c *gin.Context) {
	if s.login == nil {
		writeError(c, http.StatusNotFound, "Sign-in is not configured")
		return
	}
	redirectTo := c.Query("redirect_to")
	if redirectTo == "" {
		redirectTo = s.opts.RedirectURL
	}
	if redirectTo == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		redirectTo = scheme + "://" + c.Request.Host + "/"
	}
	writeJSON(c, http.StatusOK, gin.H{"url": s.login.AuthorizeURL(redirectTo)})
}
