package notes

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/golang-jwt/jwt/v5"
)

const LinkTTL = 5 * time.Minute

var ErrNoBaseURL = errors.New("public base url is not configured")

type linkClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// LinkSigner issues short-lived links to the notes viewer that identify the
// member who asked for them.
type LinkSigner struct {
	secret  []byte
	baseURL string
	clock   quartz.Clock
}

func NewLinkSigner(secret, baseURL string, clock quartz.Clock) *LinkSigner {
	return &LinkSigner{
		secret:  []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
	}
}

func (s *LinkSigner) Token(uid string) (string, error) {
	now := s.clock.Now()
	claims := &linkClaims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(LinkTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *LinkSigner) Link(uid string) (string, error) {
	if s.baseURL == "" {
		return "", ErrNoBaseURL
	}
	token, err := s.Token(uid)
	if err != nil {
		return "", fmt.Errorf("sign notes link: %w", err)
	}
	return s.baseURL + "/notes/view?token=" + url.QueryEscape(token), nil
}

// Parse validates a token and returns the member id it was issued to.
func (s *LinkSigner) Parse(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &linkClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return s.clock.Now() }), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*linkClaims)
	if !ok || !parsed.Valid || claims.UID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.UID, nil
}
