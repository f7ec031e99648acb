package modal

import "slices"

type RiskType string

const (
	RiskConfined RiskType = "confined"
	RiskHeight   RiskType = "height"
)

// Valid reports whether t is one of the known risk types.
func (t RiskType) Valid() bool {
	return t == RiskConfined || t == RiskHeight
}

// Departments is the fixed list of plant areas a job can be opened against.
var Departments = []string{"Crusher", "RM1", "RM2", "Petcoke Mill", "Pfister", "Kiln1", "Kiln2"}

// ValidDepartment reports whether d is an exact match for one of Departments.
func ValidDepartment(d string) bool {
	return slices.Contains(Departments, d)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	User string `json:"user"`
	Role Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
