package errors

import (
	"fmt"
	"os"
	"sync"
)

var (
	defaultHandler *ErrorHandler
	once           sync.Once
)

// GetDefaultHandler returns the process-wide error handler, creating it on
// first use.
func GetDefaultHandler() (*ErrorHandler, error) {
	var err error
	once.Do(func() {
		defaultHandler, err = NewErrorHandler()
	})
	return defaultHandler, err
}

// HandleError reports err through the default handler. If the handler itself
// cannot be created (e.g. no writable log directory), the error still reaches
// the user on stderr.
func HandleError(err error) {
	handler, handlerErr := GetDefaultHandler()
	if handlerErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	handler.Handle(err)
}

// resetDefaultHandler resets the singleton for testing purposes
func resetDefaultHandler() {
	defaultHandler = nil
	once = sync.Once{}
}
