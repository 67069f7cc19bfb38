package user

import "strings"

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Teacher
	RoleTeacher = "teacher:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	TeacherRoles = []string{RoleTeacher}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()
)

func getAllRoles() []string {
	all := make([]string, 0, 5)
	all = append(all, AdminRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, StudentRoles...)
	return all
}

func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// User is the authenticated actor. Accounts live in the identity service; only what
// the JWT carries is known here.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// IsStaff reports whether the user may manage report cards at all.
func (u User) IsStaff() bool {
	return u.IsAdmin() || u.IsTeacher()
}
