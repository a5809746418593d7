package runtime

import "errors"

// ErrMissingStats is the liveness detector: the runtime reported no
// memory fields for the container, which means it has died.
var ErrMissingStats = errors.New("container stats missing memory fields")
