package radio

import "errors"

var (
	// ErrInvalidSource is returned for sources that cannot be used for positioning.
	ErrInvalidSource = errors.New("radio: invalid source")

	// ErrInvalidReading is returned by reading constructors on bad input.
	ErrInvalidReading = errors.New("radio: invalid reading")
)
