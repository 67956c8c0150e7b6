// Package identity turns the signed whoami cookie into a stable participant
// identity, creating a guest participant when the request carries none.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"breakout/internal/records"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const CookieName = "whoami"

const issuer = "breakout"

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is what the hub needs to know about the caller.
type Identity struct {
	ID          string
	DisplayName string
}

type Resolver struct {
	secret       []byte
	participants records.ParticipantStore
	maxAge       time.Duration
}

func NewResolver(secret string, participants records.ParticipantStore, maxAge time.Duration) *Resolver {
	return &Resolver{
		secret:       []byte(secret),
		participants: participants,
		maxAge:       maxAge,
	}
}

// Issue signs a token naming the participant.
func (r *Resolver) Issue(participantID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   participantID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(r.maxAge)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return token, nil
}

// Verify returns the participant id carried by a valid token.
func (r *Resolver) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Resolve identifies the caller. Requests without a valid cookie get a new
// guest participant and the cookie is (re)issued on w.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (Identity, error) {
	ctx := req.Context()

	if cookie, err := req.Cookie(CookieName); err == nil {
		if id, err := r.Verify(cookie.Value); err == nil {
			p, err := r.participants.FindParticipant(ctx, id)
			switch {
			case err == nil:
				return Identity{ID: p.LookupID, DisplayName: p.DisplayName}, nil
			case errors.Is(err, records.ErrNotFound):
				return r.recreate(ctx, id)
			default:
				return Identity{}, fmt.Errorf("resolving participant: %w", err)
			}
		}
	}

	p, err := r.participants.CreateParticipant(ctx, uuid.NewString(), records.DefaultDisplayName)
	if err != nil {
		return Identity{}, fmt.Errorf("creating participant: %w", err)
	}
	if err := r.SetCookie(w, p.LookupID); err != nil {
		return Identity{}, err
	}
	return Identity{ID: p.LookupID, DisplayName: p.DisplayName}, nil
}

// recreate restores a participant whose record vanished. Another request
// carrying the same cookie may win the race, in which case its record is used.
func (r *Resolver) recreate(ctx context.Context, id string) (Identity, error) {
	p, err := r.participants.CreateParticipant(ctx, id, records.DefaultDisplayName)
	if errors.Is(err, records.ErrConflict) {
		p, err = r.participants.FindParticipant(ctx, id)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("recreating participant: %w", err)
	}
	return Identity{ID: p.LookupID, DisplayName: p.DisplayName}, nil
}

func (r *Resolver) SetCookie(w http.ResponseWriter, participantID string) error {
	token, err := r.Issue(participantID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(r.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
