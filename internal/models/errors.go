package models

// Repository errors shared by every store implementation.
var (
	ErrNotFound       = Error("record not found")
	ErrDuplicateToken = Error("access token already issued")
	ErrUserExists     = Error("user already exists")
)

type Error string

func (e Error) Error() string {
	return string(e)
}
