package errors

import "errors"

var (
	ErrBakefileNotFound   = errors.New("bakefile not found")
	ErrBakefileParse      = errors.New("bakefile parsing failed")
	ErrManifestNotFound   = errors.New("manifest not found")
	ErrManifestParse      = errors.New("manifest parsing failed")
	ErrStageFailed        = errors.New("stage failed")
	ErrIdentityCreation   = errors.New("identity creation failed")
	ErrFinalizationPolicy = errors.New("finalization policy violation")
	ErrSourceFailed       = errors.New("source staging failed")
	ErrRuntimeFailed      = errors.New("runtime operation failed")
	ErrRegistryFailed     = errors.New("registry operation failed")
	ErrFileSystemFailed   = errors.New("filesystem operation failed")
)

type BakekitError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *BakekitError) Error() string {
	return e.OriginalErr.Error()
}

func (e *BakekitError) Unwrap() error {
	return e.OriginalErr
}

func NewBakekitError(errorType error, context, cause, suggestion string, originalErr error) *BakekitError {
	return &BakekitError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewBakefileError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrBakefileNotFound, context, cause, suggestion, originalErr)
}

func NewParseError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrBakefileParse, context, cause, suggestion, originalErr)
}

func NewManifestError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrManifestParse, context, cause, suggestion, originalErr)
}

func NewStageError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrStageFailed, context, cause, suggestion, originalErr)
}

func NewIdentityError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrIdentityCreation, context, cause, suggestion, originalErr)
}

func NewFinalizationError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrFinalizationPolicy, context, cause, suggestion, originalErr)
}

func NewRuntimeError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrRuntimeFailed, context, cause, suggestion, originalErr)
}

func NewRegistryError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrRegistryFailed, context, cause, suggestion, originalErr)
}

func NewFileSystemError(context, cause, suggestion string, originalErr error) *BakekitError {
	return NewBakekitError(ErrFileSystemFailed, context, cause, suggestion, originalErr)
}
