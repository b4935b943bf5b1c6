package auth

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ParentLookup resolves a parent session token.
type ParentLookup interface {
	Lookup(ctx context.Context, token string) (Parent, error)
}

// ChildVerifier resolves a child session token.
type ChildVerifier interface {
	Verify(token string) (Child, error)
}

// Resolver turns session cookies into principals.
type Resolver struct {
	sessions      ParentLookup
	children      ChildVerifier
	sessionCookie string
	childCookie   string
}

// NewResolver creates a Resolver reading the named cookies.
func NewResolver(sessions ParentLookup, children ChildVerifier, sessionCookie, childCookie string) *Resolver {
	return &Resolver{
		sessions:      sessions,
		children:      children,
		sessionCookie: sessionCookie,
		childCookie:   childCookie,
	}
}

// ResolveParent returns the parent behind the session cookie.
// Returns ErrUnauthenticated when the cookie is absent or the session is unknown.
func (r *Resolver) ResolveParent(c *fiber.Ctx) (Parent, error) {
	token := c.Cookies(r.sessionCookie)
	if token == "" {
		return Parent{}, ErrUnauthenticated
	}
	p, err := r.sessions.Lookup(c.Context(), token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Parent{}, ErrUnauthenticated
		}
		return Parent{}, err
	}
	return p, nil
}

// ResolveChild returns the child behind the child session cookie.
func (r *Resolver) ResolveChild(c *fiber.Ctx) (Child, error) {
	token := c.Cookies(r.childCookie)
	if token == "" {
		return Child{}, ErrUnauthenticated
	}
	ch, err := r.children.Verify(token)
	if err != nil {
		return Child{}, ErrUnauthenticated
	}
	return ch, nil
}

// Authenticate verifies the child session cookie, if any, and stores the
// child for later checks. It never rejects a request and never touches the
// parent session store; routes that accept a parent resolve it with
// RequireParent or RequireAny.
func (r *Resolver) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ch, err := r.ResolveChild(c); err == nil {
			SetChild(c, ch)
		}
		return c.Next()
	}
}

// RequireParent resolves the parent session and rejects requests without one.
func (r *Resolver) RequireParent() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ParentFrom(c); ok {
			return c.Next()
		}
		p, err := r.ResolveParent(c)
		switch {
		case err == nil:
			SetParent(c, p)
			return c.Next()
		case errors.Is(err, ErrUnauthenticated):
			return unauthorized(c)
		default:
			return sessionStoreFailure(c, err)
		}
	}
}

// RequireAny resolves the parent session when a cookie is present and
// rejects requests carrying neither a parent nor a child session. A child
// session still passes when the parent session store fails.
func (r *Resolver) RequireAny() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ParentFrom(c); !ok {
			p, err := r.ResolveParent(c)
			switch {
			case err == nil:
				SetParent(c, p)
			case errors.Is(err, ErrUnauthenticated):
			default:
				if _, ok := ChildFrom(c); !ok {
					return sessionStoreFailure(c, err)
				}
				log.Warn().
					Err(err).
					Str("request_id", c.GetRespHeader("X-Request-ID")).
					Msg("parent session lookup failed, continuing as child")
			}
		}

		if _, ok := PrincipalFrom(c); !ok {
			return unauthorized(c)
		}
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func sessionStoreFailure(c *fiber.Ctx, err error) error {
	log.Error().
		Err(err).
		Str("request_id", c.GetRespHeader("X-Request-ID")).
		Msg("failed to resolve parent session")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
