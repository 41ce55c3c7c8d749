package auth

import (
	"errors"
	"fmt"
	"ms-booking/internal/models"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("authorization header is missing")
	ErrBadHeader    = errors.New("authorization header format must be 'Bearer {token}'")
)

// Claims are the token fields the service reads. Keycloak tokens carry roles in
// realm_access; locally issued tokens carry a single role claim.
type Claims struct {
	Role        string       `json:"role,omitempty"`
	VendorRef   string       `json:"vendor_ref,omitempty"`
	RealmAccess *RealmAccess `json:"realm_access,omitempty"`
	jwt.RegisteredClaims
}

type RealmAccess struct {
	Roles []string `json:"roles"`
}

var rolePriority = []models.Actor{models.ActorAdmin, models.ActorSystem, models.ActorVendor, models.ActorClient}

// Principal maps the claims to the caller of a booking operation. Vendors are
// identified by vendor_ref when present, else by subject.
func (c *Claims) Principal() models.Principal {
	role := models.Actor(strings.ToLower(c.Role))
	if !role.Valid() {
		role = models.ActorClient
		if c.RealmAccess != nil {
			for _, candidate := range rolePriority {
				if hasRole(c.RealmAccess.Roles, candidate) {
					role = candidate
					break
				}
			}
		}
	}
	id := c.Subject
	if role == models.ActorVendor && c.VendorRef != "" {
		id = c.VendorRef
	}
	return models.Principal{Role: role, ID: id}
}

func hasRole(roles []string, want models.Actor) bool {
	for _, r := range roles {
		if strings.EqualFold(r, string(want)) {
			return true
		}
	}
	return false
}

// ExtractTokenFromRequest returns the bearer token of r.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrBadHeader
	}
	return parts[1], nil
}

// IssueToken signs an HS256 token for internal callers and local development.
func IssueToken(secret []byte, p models.Principal, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.Role == models.ActorVendor {
		claims.VendorRef = p.ID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
