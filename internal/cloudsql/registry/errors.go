package registry

import "errors"

// ErrAlreadyInitialised is returned by SetApplicationName once a Registry
// has produced its first ConnectionInfoCache: from that point the
// application name can no longer be changed.
var ErrAlreadyInitialised = errors.New("cloudsqlconn: application name cannot be changed after the registry has been used")

// ErrInstanceRequired is returned by Connect when config.Instance is empty.
var ErrInstanceRequired = errors.New("cloudsqlconn: config.Instance is required")
