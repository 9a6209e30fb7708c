package identifier

import "errors"

// ErrInvalidInstanceName is returned by Parse when the given string is not
// a well-formed "project:region:instance" identifier.
var ErrInvalidInstanceName = errors.New("cloudsqlconn: invalid instance connection name")
