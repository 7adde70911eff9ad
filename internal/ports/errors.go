package ports

import "errors"

// ErrDuplicate is returned by repositories when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate record")
