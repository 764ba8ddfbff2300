package album

import "errors"

// ErrInvalidName is returned for empty or overlong album names.
var ErrInvalidName = errors.New("invalid album name")
