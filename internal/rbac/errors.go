package rbac

import "errors"

var (
	ErrNotFound           = errors.New("rbac: not found")
	ErrConflict           = errors.New("rbac: already exists")
	ErrInvalidInput       = errors.New("rbac: invalid input")
	ErrInvalidCredentials = errors.New("rbac: invalid credentials")
)
