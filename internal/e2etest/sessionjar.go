package e2etest

import (
	"github.com/myrjola/casefile/internal/errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// SessionCookieName is the name of the cookie that carries the casefile session token.
const SessionCookieName = "casefile_session"

// sessionJar is a [http.CookieJar] for talking to a casefile server over plain HTTP. It drops the Secure flag so the
// session and CSRF cookies are sent to the test listener, and it remembers the latest session token so tests can
// check that logging in and out rotates it.
type sessionJar struct {
	jar *cookiejar.Jar

	mu    sync.Mutex
	token string
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "new cookie jar")
	}
	return &sessionJar{jar: jar, mu: sync.Mutex{}, token: ""}, nil
}

func (s *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		cookie.Secure = false
		if cookie.Name == SessionCookieName {
			s.mu.Lock()
			if cookie.MaxAge < 0 {
				s.token = ""
			} else {
				s.token = cookie.Value
			}
			s.mu.Unlock()
		}
	}
	s.jar.SetCookies(u, cookies)
}

func (s *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

// sessionToken returns the session token the server handed out last, or "" before the first session write.
func (s *sessionJar) sessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
