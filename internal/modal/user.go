package modal

// UserRecord is one entry of the users file.
type UserRecord struct {
	User    string `json:"user"`
	PinHash string `json:"pin_hash"`
	Role    string `json:"role,omitempty"`
}

// ResolvedRole maps the free-form role field onto a Role.
func (u UserRecord) ResolvedRole() Role {
	if u.Role == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}
