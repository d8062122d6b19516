package user

// User is the profile payload of a signed-in account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
