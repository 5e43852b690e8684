package medicine

import "errors"

// ErrDuplicate is returned by Store.Insert when the external id is already persisted.
var ErrDuplicate = errors.New("medicine already exists")

// ErrNotFound is returned when an external id has no stored record.
var ErrNotFound = errors.New("medicine not found")
