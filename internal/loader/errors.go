package loader

import "errors"

// ErrMissingColumn marks a schema failure: a required column absent from an
// input table. Schema failures abort the run before any stage executes.
var ErrMissingColumn = errors.New("missing required column")
