package session

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Cookie names shared with every browser client.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// SetSessionCookies attaches the token pair to the response.
// Both cookies are httpOnly with path=/. Browsers reject
// SameSite=None cookies without Secure over plain HTTP, and local
// development has no TLS, so local hosts get Secure=false with
// SameSite=Lax while every other origin gets Secure=true with
// SameSite=None.
func SetSessionCookies(c echo.Context, p Pair) {
	secure, sameSite := cookiePolicy(c.Request().Host)
	c.SetCookie(sessionCookie(AccessCookie, p.Access.Value, p.Access.Exp, secure, sameSite))
	c.SetCookie(sessionCookie(RefreshCookie, p.Refresh.Value, p.Refresh.Exp, secure, sameSite))
}

// ClearSessionCookies expires both session cookies, using the same
// attribute policy so the browser actually matches and drops them.
func ClearSessionCookies(c echo.Context) {
	secure, sameSite := cookiePolicy(c.Request().Host)
	gone := time.Unix(0, 0).UTC()
	c.SetCookie(sessionCookie(AccessCookie, "", gone, secure, sameSite))
	c.SetCookie(sessionCookie(RefreshCookie, "", gone, secure, sameSite))
}

func sessionCookie(name, value string, exp time.Time, secure bool, sameSite http.SameSite) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Expires:  exp,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}

// cookiePolicy picks Secure/SameSite attributes from the request
// host. Ports are stripped before matching.
func cookiePolicy(host string) (secure bool, sameSite http.SameSite) {
	if isLocalHost(host) {
		return false, http.SameSiteLaxMode
	}
	return true, http.SameSiteNoneMode
}

func isLocalHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	return host == "localhost" || host == "127.0.0.1" || host == "::1" ||
		strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}
