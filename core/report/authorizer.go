package report

import "github.com/trezcool/rapor/core/user"

// Authorizer decides who may manage the report cards of a class.
type Authorizer interface {
	CanManage(actor user.User, class Class) bool
}

// HomeroomAuthorizer lets admins and the class's homeroom teacher through.
type HomeroomAuthorizer struct{}

var _ Authorizer = HomeroomAuthorizer{}

func (HomeroomAuthorizer) CanManage(actor user.User, class Class) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.IsTeacher() && actor.ID != "" && class.HomeroomTeacherID == actor.ID
}
