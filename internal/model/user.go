package model

// User is the identity handed over by the session layer.
type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin" || u.Role == "system"
}
