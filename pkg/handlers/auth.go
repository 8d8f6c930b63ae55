package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"halcyon-cms/pkg/ctxlog"
)

const (
	sessionToken = "access_token"
	sessionState = "oauth_state"
)

// Auth guards the API behind a GitHub login kept in a cookie session.
type Auth struct {
	oauth *oauth2.Config
}

func NewAuth(oauth *oauth2.Config) *Auth {
	return &Auth{oauth: oauth}
}

func (a *Auth) Register(r gin.IRoutes) {
	r.GET("/login", a.Login)
	r.GET("/auth/callback", a.Callback)
	r.GET("/logout", a.Logout)
}

func (a *Auth) Required(c *gin.Context) {
	session := sessions.Default(c)
	if session.Get(sessionToken) == nil {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		} else {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
		}
		return
	}
	c.Next()
}

func (a *Auth) Login(c *gin.Context) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		c.String(http.StatusInternalServerError, "Failed to start login")
		return
	}
	state := hex.EncodeToString(buf)

	session := sessions.Default(c)
	session.Set(sessionState, state)
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "Failed to start login")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline))
}

func (a *Auth) Callback(c *gin.Context) {
	session := sessions.Default(c)
	want, _ := session.Get(sessionState).(string)
	if want == "" || c.Query("state") != want {
		c.String(http.StatusBadRequest, "Invalid OAuth state")
		return
	}

	token, err := a.oauth.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		ctxlog.FromContext(c.Request.Context()).Warn("oauth exchange failed", "error", err)
		c.String(http.StatusInternalServerError, "OAuth Exchange Failed")
		return
	}

	session.Delete(sessionState)
	session.Set(sessionToken, token.AccessToken)
	if err := session.Save(); err != nil {
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (a *Auth) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.Redirect(http.StatusFound, "/login")
}
