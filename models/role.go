package models

// Role identifies which kind of account a reference points to. An explicit
// enum instead of capitalizing a role string at runtime.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin, RoleDoctor:
		return true
	}
	return false
}
