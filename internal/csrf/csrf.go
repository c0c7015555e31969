// Package csrf protects form posts with a signed double-submit token.
//
// A csrftoken cookie carries a random nonce. Pages embed an HS256 token that
// binds the nonce and expires; unsafe requests must echo that token in the
// csrfmiddlewaretoken form field (or X-CSRFToken header).
package csrf

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "csrftoken"
	FieldName  = "csrfmiddlewaretoken"
	HeaderName = "X-CSRFToken"
)

var ErrInvalidToken = errors.New("CSRF verification failed")

type ctxKey struct{}

type claims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Protector issues and checks tokens signed with a secret key.
type Protector struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func New(secret string, ttl time.Duration, secureCookie bool) *Protector {
	return &Protector{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secureCookie,
		now:    time.Now,
	}
}

// Issue signs a token bound to nonce.
func (p *Protector) Issue(nonce string) (string, error) {
	now := p.now()
	c := claims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
}

// Verify checks that token is validly signed, unexpired and bound to nonce.
func (p *Protector) Verify(token, nonce string) error {
	if token == "" || nonce == "" {
		return ErrInvalidToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || c.Nonce != nonce {
		return ErrInvalidToken
	}
	return nil
}

// Middleware ensures every response has a nonce cookie, exposes a fresh
// token through Token, and rejects unsafe requests without a valid token.
func (p *Protector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := ""
		if c, err := r.Cookie(CookieName); err == nil {
			nonce = c.Value
		}

		if !safeMethod(r.Method) {
			token := r.Header.Get(HeaderName)
			if token == "" {
				var err error
				token, err = formToken(r)
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
					return
				}
			}
			if err := p.Verify(token, nonce); err != nil {
				http.Error(w, "CSRF verification failed.", http.StatusForbidden)
				return
			}
		}

		if nonce == "" {
			nonce = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    nonce,
				Path:     "/",
				MaxAge:   int(p.ttl.Seconds()),
				HttpOnly: true,
				Secure:   p.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		token, err := p.Issue(nonce)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// multipartMemory caps the part of a multipart body held in memory.
const multipartMemory = 1 << 20

// formToken parses the body, multipart or url-encoded, and returns the
// submitted token field.
func formToken(r *http.Request) (string, error) {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return "", err
	}
	return r.PostForm.Get(FieldName), nil
}

// Token returns the token to embed in forms rendered for r.
func Token(r *http.Request) string {
	t, _ := r.Context().Value(ctxKey{}).(string)
	return t
}

func safeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
