package usage

import "errors"

// ErrInvalidEntry indicates a usage entry without a day or model key.
var ErrInvalidEntry = errors.New("usage: entry missing day or model")
