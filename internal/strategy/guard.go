package strategy

import (
	"fmt"

	"simba/internal/simerr"
)

// Guard runs call, recovering any panic and turning it into an
// ImplementationError attributed to nodeID/module, matching
// PythonError/ExternalError in spec.md's error taxonomy: a plug-in that
// panics is caught at this boundary rather than unwinding the node's
// goroutine.
func Guard(nodeID, module string, call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = simerr.NewImplementationError(nodeID, module, fmt.Errorf("panic: %v", r))
		}
	}()
	return call()
}
