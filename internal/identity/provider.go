package identity

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/weiawesome/pawfect-live/internal/domain"
	"github.com/weiawesome/pawfect-live/pkg/jwt"
	pkglog "github.com/weiawesome/pawfect-live/pkg/log"
	"github.com/weiawesome/pawfect-live/pkg/response"
)

const (
	IdentityKey   = "identity"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Verifier validates identity tokens.
type Verifier interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Provider turns request credentials into identities.
type Provider struct {
	verifier Verifier
}

// NewProvider creates a provider. A nil verifier accepts no tokens and every
// connection falls back to the identity it claims or a guest.
func NewProvider(verifier Verifier) *Provider {
	return &Provider{verifier: verifier}
}

// FromRequest returns the verified identity carried by r, or nil when r has
// no token.
func (p *Provider) FromRequest(r *http.Request) (*domain.Identity, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, nil
	}
	if p.verifier == nil {
		return nil, ErrInvalidToken
	}

	claims, err := p.verifier.ValidateToken(token)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	return &domain.Identity{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.AvatarURL,
		IsAdmin:     claims.IsAdmin,
	}, nil
}

// OptionalAuth is a gin middleware that stores a verified identity in the
// context when the request carries a token. Requests without one pass
// through; requests with a bad one are rejected.
func (p *Provider) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := p.FromRequest(c.Request)
		if err != nil {
			l := pkglog.Ctx(c.Request.Context())
			l.Warn().Err(err).Msg("rejected identity token")
			response.Unauthorized(c, "invalid identity token")
			c.Abort()
			return
		}
		if id != nil {
			c.Set(IdentityKey, id)
			c.Set(pkglog.FieldUserID, id.UserID)
			c.Set(pkglog.FieldUsername, id.DisplayName)
		}
		c.Next()
	}
}

// FromContext returns the identity stored by OptionalAuth.
func FromContext(c *gin.Context) *domain.Identity {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return nil
	}
	id, _ := v.(*domain.Identity)
	return id
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
	}
	return r.URL.Query().Get(TokenQueryKey)
}

// Guest returns a generated identity for an anonymous connection.
func Guest() domain.Identity {
	return domain.Identity{
		UserID: "guest-" + uuid.New().String()[:8],
		Guest:  true,
	}
}

// ForJoin picks the identity a join runs under: the verified one when the
// connection presented a token, else the one claimed in the join message,
// else a guest.
func ForJoin(verified, claimed *domain.Identity) domain.Identity {
	switch {
	case verified != nil:
		return *verified
	case claimed != nil && claimed.UserID != "":
		return *claimed
	case claimed != nil:
		id := Guest()
		id.DisplayName = claimed.DisplayName
		id.AvatarURL = claimed.AvatarURL
		return id
	default:
		return Guest()
	}
}
