package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
)

const initDataHeader = "X-Tg-Initdata"

// requireAccess guards the API for the Telegram WebApp. The init data is not
// signature-checked; only its presence and the username are inspected.
func (s *Server) requireAccess() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !s.opts.RequireInitData && len(s.allowed) == 0 {
				return next(c)
			}

			initData := strings.TrimSpace(c.Request().Header.Get(initDataHeader))
			if initData == "" {
				return fail(c, http.StatusUnauthorized, "Unauthorized")
			}
			if len(s.allowed) > 0 {
				username, ok := usernameFromInitData(initData)
				if !ok || !s.allowed[strings.ToLower(username)] {
					return fail(c, http.StatusForbidden, "Forbidden")
				}
			}
			return next(c)
		}
	}
}

// usernameFromInitData extracts user.username from a WebApp init data query string.
func usernameFromInitData(initData string) (string, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return "", false
	}
	raw := values.Get("user")
	if raw == "" {
		return "", false
	}

	var user struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return "", false
	}
	if user.Username == "" {
		return "", false
	}
	return user.Username, true
}

func usernameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "@")))
		if n != "" {
			set[n] = true
		}
	}
	return set
}
