package auth

// Identity is the authenticated caller resolved from a valid token.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
