// Package permission maps roles to the permission tags they hold. The table
// is fixed at compile time; nothing mutates it at runtime.
package permission

import (
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/billingcore/internal/apperror"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleInternal Role = "INTERNAL"
	RolePortal   Role = "PORTAL"
)

func (r Role) Valid() bool {
	_, ok := matrix[r]
	return ok
}

// Permission is a "<resource>:<verb>" tag.
type Permission string

const (
	SubscriptionRead       Permission = "subscription:read"
	SubscriptionCreate     Permission = "subscription:create"
	SubscriptionUpdate     Permission = "subscription:update"
	SubscriptionDelete     Permission = "subscription:delete"
	SubscriptionTransition Permission = "subscription:transition"

	InvoiceRead       Permission = "invoice:read"
	InvoiceCreate     Permission = "invoice:create"
	InvoiceDelete     Permission = "invoice:delete"
	InvoiceTransition Permission = "invoice:transition"

	PaymentRead   Permission = "payment:read"
	PaymentCreate Permission = "payment:create"

	CatalogRead   Permission = "catalog:read"
	CatalogManage Permission = "catalog:manage"

	AuditLogRead Permission = "audit_log:read"

	UserRead   Permission = "user:read"
	UserManage Permission = "user:manage"
)

var all = []Permission{
	SubscriptionRead, SubscriptionCreate, SubscriptionUpdate, SubscriptionDelete, SubscriptionTransition,
	InvoiceRead, InvoiceCreate, InvoiceDelete, InvoiceTransition,
	PaymentRead, PaymentCreate,
	CatalogRead, CatalogManage,
	AuditLogRead,
	UserRead, UserManage,
}

var matrix = map[Role]map[Permission]struct{}{
	RoleAdmin:    setOf(all...),
	RoleInternal: setOf(without(all, UserManage)...),
	RolePortal:   setOf(SubscriptionRead, InvoiceRead, PaymentRead, CatalogRead),
}

func setOf(perms ...Permission) map[Permission]struct{} {
	out := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

func without(perms []Permission, drop Permission) []Permission {
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}

func HasPermission(role Role, perm Permission) bool {
	_, ok := matrix[role][perm]
	return ok
}

// Permissions returns a sorted copy of the tags held by role.
func Permissions(role Role) []Permission {
	perms := make([]Permission, 0, len(matrix[role]))
	for p := range matrix[role] {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// CanAccessOwned reports whether caller may act on a record owned by owner.
// Portal users are limited to their own records.
func CanAccessOwned(role Role, callerID, ownerID snowflake.ID) bool {
	switch role {
	case RoleAdmin, RoleInternal:
		return true
	case RolePortal:
		return callerID != 0 && callerID == ownerID
	default:
		return false
	}
}

func Authorize(role Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return apperror.Forbidden(string(perm), fmt.Sprintf("role %s", role))
	}
	return nil
}

// AuthorizeOwned combines the permission and ownership checks.
func AuthorizeOwned(role Role, perm Permission, callerID, ownerID snowflake.ID) error {
	if err := Authorize(role, perm); err != nil {
		return err
	}
	if !CanAccessOwned(role, callerID, ownerID) {
		return apperror.Forbidden(string(perm), "not the owner")
	}
	return nil
}
