package sfu

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant is the LiveKit "video" claim. canPublish is always sent because
// LiveKit treats a missing value as permission to publish.
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type Claims struct {
	jwt.RegisteredClaims
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video"`
}

// Grant describes who joins which room and with what rights.
type Grant struct {
	Room       string
	Identity   string
	Name       string
	CanPublish bool
}

type Minter struct {
	url       string
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewMinter(url, apiKey, apiSecret string, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Minter{
		url:       url,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (m *Minter) URL() string {
	return m.url
}

// Mint signs an HS256 access token for the grant.
func (m *Minter) Mint(g Grant) (string, error) {
	if g.Room == "" || g.Identity == "" {
		return "", errors.New("room and identity are required")
	}
	if m.apiKey == "" || len(m.apiSecret) == 0 {
		return "", errors.New("sfu credentials are not configured")
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.apiKey,
			Subject:   g.Identity,
			ID:        g.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Name: g.Name,
		Video: &VideoGrant{
			Room:           g.Room,
			RoomJoin:       true,
			CanPublish:     g.CanPublish,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.apiSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign sfu token: %w", err)
	}
	return token, nil
}
