package document

import "errors"

// ErrValidation indicates a document could not be built from the supplied
// facts (for example a price_technical record with no closing price).
// It fails the single document, never the batch.
var ErrValidation = errors.New("invalid document facts")
