package auth

import "context"

const (
	PermPermitsRead       = "permits.read"
	PermPermitsWrite      = "permits.write"
	PermPermitsApprove    = "permits.approve"
	PermPermitsAdminister = "permits.administer"
	PermBalancesRead      = "balances.read"
	PermBalancesReset     = "balances.reset"
	PermAttestationsWrite = "attestations.write"
	PermMetricsRead       = "metrics.read"
)

var DefaultPermissions = []string{
	PermPermitsRead,
	PermPermitsWrite,
	PermPermitsApprove,
	PermPermitsAdminister,
	PermBalancesRead,
	PermBalancesReset,
	PermAttestationsWrite,
	PermMetricsRead,
}

var RolePermissions = map[string][]string{
	RoleEmployee: {
		PermPermitsRead,
		PermPermitsWrite,
		PermBalancesRead,
	},
	RoleSupervisor: {
		PermPermitsRead,
		PermPermitsWrite,
		PermPermitsApprove,
		PermBalancesRead,
	},
	RoleHR: {
		PermPermitsRead,
		PermPermitsWrite,
		PermPermitsApprove,
		PermPermitsAdminister,
		PermBalancesRead,
		PermBalancesReset,
		PermAttestationsWrite,
		PermMetricsRead,
	},
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
