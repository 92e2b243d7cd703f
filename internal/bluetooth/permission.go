package bluetooth

import (
	"context"
	"os/user"
	"slices"
	"strconv"

	"golang.org/x/sys/unix"
)

// GroupPermission grants device discovery to root and to members of a unix
// group. An empty Group grants permission unconditionally.
type GroupPermission struct {
	Group string

	geteuid     func() int
	getegid     func() int
	getgroups   func() ([]int, error)
	lookupGroup func(name string) (*user.Group, error)
}

// NewGroupPermission returns a checker for the named group.
func NewGroupPermission(group string) *GroupPermission {
	return &GroupPermission{
		Group:       group,
		geteuid:     unix.Geteuid,
		getegid:     unix.Getegid,
		getgroups:   unix.Getgroups,
		lookupGroup: user.LookupGroup,
	}
}

// HasDeviceDiscoveryPermission implements PermissionChecker.
func (p *GroupPermission) HasDeviceDiscoveryPermission(context.Context) bool {
	if p.Group == "" || p.geteuid() == 0 {
		return true
	}

	grp, err := p.lookupGroup(p.Group)
	if err != nil {
		return false
	}
	gid, err := strconv.Atoi(grp.Gid)
	if err != nil {
		return false
	}
	if p.getegid() == gid {
		return true
	}

	groups, err := p.getgroups()
	if err != nil {
		return false
	}
	return slices.Contains(groups, gid)
}
