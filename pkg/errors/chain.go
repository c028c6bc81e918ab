package errors

import (
	stdErrors "errors"
	"fmt"

	"go.uber.org/multierr"
)

// Chain flattens err for logging: each wrapped cause outermost first, with
// combined errors (multierr) expanded in place.
func Chain(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		for ; e != nil; e = stdErrors.Unwrap(e) {
			if parts := multierr.Errors(e); len(parts) > 1 {
				for _, part := range parts {
					walk(part)
				}
				return
			}
			out = append(out, fmt.Sprintf("%T: %v", e, e))
		}
	}
	walk(err)
	return out
}
