package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

const cookiePrefix = "billed_"

// Signer signs cookie values with HMAC-SHA256 so they cannot be edited client side
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature of value
func (s *Signer) Sign(name, value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(name + ":" + value))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid compares signature with the expected one in constant time
func (s *Signer) Valid(name, value, signature string) bool {
	return hmac.Equal([]byte(s.Sign(name, value)), []byte(signature))
}

// CookieStore keeps items in signed cookies for the span of one HTTP exchange.
// Writes are visible to later reads on the same store.
type CookieStore struct {
	r      *http.Request
	w      http.ResponseWriter
	signer *Signer
	secure bool
	writes map[string]*string
}

// NewCookieStore binds a store to one request/response pair
func NewCookieStore(w http.ResponseWriter, r *http.Request, signer *Signer) *CookieStore {
	return &CookieStore{
		r:      r,
		w:      w,
		signer: signer,
		secure: r.TLS != nil,
		writes: make(map[string]*string),
	}
}

func (c *CookieStore) GetItem(key string) (string, bool) {
	if v, ok := c.writes[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}

	name := cookiePrefix + key
	cookie, err := c.r.Cookie(name)
	if err != nil {
		return "", false
	}
	encoded, signature, ok := strings.Cut(cookie.Value, ".")
	if !ok || !c.signer.Valid(name, encoded, signature) {
		return "", false
	}
	value, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(value), true
}

func (c *CookieStore) SetItem(key, value string) error {
	name := cookiePrefix + key
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value))
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    encoded + "." + c.signer.Sign(name, encoded),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.writes[key] = &value
	return nil
}

func (c *CookieStore) RemoveItem(key string) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     cookiePrefix + key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.writes[key] = nil
	return nil
}
