package model

import "time"

// Admin permissions relevant to session supervision.
const (
	PermissionMonitorExam   = "exam.monitor"
	PermissionResetSession  = "exam.session.reset"
	PermissionManageStudent = "student.manage"
)

// Admin represents a proctor or operator account.
type Admin struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPermission reports whether the admin holds the named permission.
// The wildcard "*" grants everything.
func (a *Admin) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == "*" || p == perm {
			return true
		}
	}
	return false
}

// AdminLoginRequest is the payload for admin authentication.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// AdminLoginResponse is returned after successful admin login.
type AdminLoginResponse struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}
