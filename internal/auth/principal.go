// Package auth resolves who is calling: a parent through a server-side
// session, or a child through a signed session cookie.
package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrUnauthenticated is returned when no valid session accompanies the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the session does not match the claimed identity.
	ErrForbidden = errors.New("forbidden")
)

// Role tags the capability a principal carries.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Principal is either a Parent or a Child.
type Principal interface {
	PrincipalID() string
	Family() string
	Role() Role
}

// Parent is a family member allowed to approve and fulfill tickets.
type Parent struct {
	ID       string `json:"parent_id"`
	FamilyID string `json:"family_id"`
}

func (p Parent) PrincipalID() string { return p.ID }
func (p Parent) Family() string      { return p.FamilyID }
func (p Parent) Role() Role          { return RoleParent }

// Child owns tickets and drives their use.
type Child struct {
	ID       string
	FamilyID string
}

func (c Child) PrincipalID() string { return c.ID }
func (c Child) Family() string      { return c.FamilyID }
func (c Child) Role() Role          { return RoleChild }

const (
	localsParent = "auth.parent"
	localsChild  = "auth.child"
)

// SetParent stores the resolved parent on the request.
func SetParent(c *fiber.Ctx, p Parent) {
	c.Locals(localsParent, p)
}

// SetChild stores the resolved child on the request.
func SetChild(c *fiber.Ctx, ch Child) {
	c.Locals(localsChild, ch)
}

// ParentFrom returns the parent resolved for this request, if any.
func ParentFrom(c *fiber.Ctx) (Parent, bool) {
	p, ok := c.Locals(localsParent).(Parent)
	return p, ok
}

// ChildFrom returns the child resolved for this request, if any.
func ChildFrom(c *fiber.Ctx) (Child, bool) {
	ch, ok := c.Locals(localsChild).(Child)
	return ch, ok
}

// PrincipalFrom returns the parent when present, otherwise the child.
func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	if p, ok := ParentFrom(c); ok {
		return p, true
	}
	if ch, ok := ChildFrom(c); ok {
		return ch, true
	}
	return nil, false
}

// AuthorizeChild checks that the request carries a child session for childID.
func AuthorizeChild(c *fiber.Ctx, childID string) (Child, error) {
	ch, ok := ChildFrom(c)
	if !ok {
		return Child{}, ErrUnauthenticated
	}
	if ch.ID != childID {
		return Child{}, ErrForbidden
	}
	return ch, nil
}
