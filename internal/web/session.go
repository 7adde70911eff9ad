package web

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	sessionCookie = "elabgate_session"
	sessionTTL    = 12 * time.Hour
)

// sessions signs the acting account id into a cookie. The cookie holds
// "<account id>.<expiry unix>.<mac>".
type sessions struct {
	key    []byte
	secure bool
	now    func() time.Time
}

// newSessions uses secret as the signing key. With an empty secret a random
// key is generated, so sessions do not survive a restart.
func newSessions(secret string, secure bool) (*sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session key: %w", err)
		}
	}
	return &sessions{key: key, secure: secure, now: time.Now}, nil
}

func (s *sessions) sign(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (s *sessions) encode(accountID int64, expires time.Time) string {
	payload := strconv.FormatInt(accountID, 10) + "." + strconv.FormatInt(expires.Unix(), 10)
	return payload + "." + s.sign(payload)
}

func (s *sessions) decode(value string) (int64, bool) {
	idPart, rest, ok := strings.Cut(value, ".")
	if !ok {
		return 0, false
	}
	expPart, mac, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, false
	}
	if !hmac.Equal([]byte(mac), []byte(s.sign(idPart+"."+expPart))) {
		return 0, false
	}
	exp, err := strconv.ParseInt(expPart, 10, 64)
	if err != nil || s.now().Unix() >= exp {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// token returns a signed credential for API clients, carried in the
// X-Account-Token header. It has the same form and lifetime as the cookie.
func (s *sessions) token(accountID int64) (string, time.Time) {
	expires := s.now().Add(sessionTTL)
	return s.encode(accountID, expires), expires
}

func (s *sessions) issue(w http.ResponseWriter, accountID int64) {
	value, expires := s.token(accountID)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *sessions) accountID(r *http.Request) (int64, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return 0, false
	}
	return s.decode(c.Value)
}

func (s *sessions) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
