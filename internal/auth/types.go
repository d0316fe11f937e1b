package auth

import "time"

// User is a registered account. Email is stored lower-cased and trimmed and
// is unique across the store.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	FirstName       string
	LastName        string
	JoinDate        time.Time
	ProfileImageURL string
	LastLogin       *time.Time
	Enabled         bool
}

// Profile is the caller-visible slice of a user account.
type Profile struct {
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}
