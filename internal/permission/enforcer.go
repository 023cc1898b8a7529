package permission

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
)

//go:embed model.conf
var modelText string

// NewEnforcer builds a casbin enforcer whose policy is exactly the role
// matrix. No adapter is attached, so the policy cannot be persisted or
// edited through casbin's management API.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	for _, role := range []Role{RoleAdmin, RoleInternal, RolePortal} {
		for _, perm := range Permissions(role) {
			if _, err := enforcer.AddPolicy(string(role), string(perm)); err != nil {
				return nil, fmt.Errorf("seed policy %s %s: %w", role, perm, err)
			}
		}
	}
	enforcer.EnableAutoSave(false)
	return enforcer, nil
}

var Module = fx.Module("permission",
	fx.Provide(NewEnforcer),
)
