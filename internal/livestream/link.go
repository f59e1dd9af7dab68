package livestream

import (
	"net/url"
	"strings"
	"time"

	"Raksha/pkg/errors"
	"Raksha/pkg/websocket"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims admit the bearer to one alert room in one role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// LinkSigner issues and verifies room tokens and builds viewer links.
type LinkSigner struct {
	secret []byte
	base   string
	ttl    time.Duration
	now    func() time.Time
}

func NewLinkSigner(secret, publicBaseURL string, ttl time.Duration) (*LinkSigner, error) {
	if secret == "" {
		return nil, errors.New(errors.KindInvalid, "stream token secret is empty")
	}
	if _, err := url.Parse(publicBaseURL); err != nil {
		return nil, errors.Mark(err, errors.KindInvalid, "bad public base url")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{
		secret: []byte(secret),
		base:   strings.TrimRight(publicBaseURL, "/"),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Token signs an HS256 token for alertID in role.
func (s *LinkSigner) Token(alertID string, role websocket.Role) (string, error) {
	now := s.now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   alertID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ViewerLink returns <base>/watch/<token>.
func (s *LinkSigner) ViewerLink(alertID string) (string, error) {
	token, err := s.Token(alertID, websocket.RoleViewer)
	if err != nil {
		return "", errors.Wrap(err, "sign viewer link")
	}
	return s.base + "/watch/" + token, nil
}

// Verify parses token and checks signature and expiry.
func (s *LinkSigner) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New(errors.KindPermissionDenied, "missing stream token")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return nil, errors.Mark(err, errors.KindPermissionDenied, "invalid stream token")
	}
	if claims.Subject == "" {
		return nil, errors.New(errors.KindPermissionDenied, "stream token without alert")
	}
	return claims, nil
}

// Authorize checks that token grants role on alertID.
func (s *LinkSigner) Authorize(token, alertID string, role websocket.Role) error {
	claims, err := s.Verify(token)
	if err != nil {
		return err
	}
	if claims.Subject != alertID || claims.Role != string(role) {
		return errors.Newf(errors.KindPermissionDenied, "token does not grant %s on %s", role, alertID)
	}
	return nil
}
