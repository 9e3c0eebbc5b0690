package auth

// Role is what a session is allowed to act as. The zero value is an
// anonymous visitor.
type Role string

const (
	RoleAnonymous Role = ""
	RoleAdmin     Role = "admin"
)

// Capability names a privileged operation.
type Capability string

const (
	CapManageUploads Capability = "uploads:manage"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {CapManageUploads},
}

// Can reports whether the role grants capability c.
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// Valid reports whether r is a role sessions can be created for.
func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// Principal is the caller behind a request. A nil *Principal is an anonymous
// visitor and is safe to call methods on.
type Principal struct {
	SessionId string
	Role      Role
}

func (p *Principal) Can(c Capability) bool {
	if p == nil {
		return false
	}
	return p.Role.Can(c)
}

// IsAdmin reports whether the principal may manage uploads.
func (p *Principal) IsAdmin() bool {
	return p.Can(CapManageUploads)
}
