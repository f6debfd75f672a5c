package types

// Role identifies the job function a session is authenticated as.
// Role gates which events produce notifications and how they are presented.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
	RoleKitchen Role = "kitchen"
	RoleStaff   Role = "staff"
	RoleOther   Role = "other"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCashier, RoleKitchen, RoleStaff, RoleOther:
		return true
	}
	return false
}

// Session is the identity a connection authenticates as. It is pure data
// owned by the hosting application; the zero value means "not authenticated".
type Session struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Authenticated reports whether the session carries a complete identity.
// Absence of either field means the session cannot be authenticated.
func (s Session) Authenticated() bool {
	return s.UserID != "" && s.Role != ""
}

// Kind classifies a notification for presentation purposes.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notification is a single entry in the session's notification log.
// ID is derived from the originating order and event kind so the same
// order+event pair yields a stable id; the log does not deduplicate on it.
type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Kind      Kind   `json:"kind"`
	Timestamp string `json:"timestamp"` // ISO-8601 / RFC 3339
	IsRead    bool   `json:"isRead"`
}
