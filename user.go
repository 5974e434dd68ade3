package mailscheduler

type User struct {
	Id    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	Role           string `json:"role"`
	OrganizationId *int64 `json:"organizationId"`

	// Blob produced by PasswordCipher when the account was created with a
	// generated one time password. Empty when no recoverable password is
	// stored.
	EncryptedPassword string `json:"-"`
}

// DisplayName falls back to the email address when no name is set.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}

	return u.Email
}
