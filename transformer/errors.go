package transformer

import "fmt"

// ShapeError reports a dimension mismatch between an input and the component
// it was handed to. These are programming errors: the operation that raised
// one produced no partial output.
type ShapeError struct {
	Op   string
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: want %s, got %s", e.Op, e.Want, e.Got)
}

// InvalidConfigError reports a constructor argument that can never work,
// such as an odd model width or a non-positive head count.
type InvalidConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s=%d (%s)", e.Field, e.Value, e.Reason)
}
