package model

import "strings"

// Permission is a bitmask of Slack workspace roles
type Permission uint8

const (
	PermissionMember Permission = 1 << iota
	PermissionAdmin
	PermissionOwner
	PermissionPrimaryOwner
)

// PermissionManage is required to configure the organization ledger
const PermissionManage = PermissionAdmin | PermissionOwner | PermissionPrimaryOwner

// NewPermission builds the bitmask from Slack user flags
func NewPermission(isAdmin, isOwner, isPrimaryOwner bool) Permission {
	p := PermissionMember
	if isAdmin {
		p |= PermissionAdmin
	}
	if isOwner {
		p |= PermissionOwner
	}
	if isPrimaryOwner {
		p |= PermissionPrimaryOwner
	}
	return p
}

// IsAuthorized reports whether actor holds any role in required
func IsAuthorized(actor, required Permission) bool {
	return actor&required != 0
}

func (p Permission) String() string {
	var names []string
	for _, r := range []struct {
		bit  Permission
		name string
	}{
		{PermissionMember, "member"},
		{PermissionAdmin, "admin"},
		{PermissionOwner, "owner"},
		{PermissionPrimaryOwner, "primary_owner"},
	} {
		if p&r.bit != 0 {
			names = append(names, r.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
