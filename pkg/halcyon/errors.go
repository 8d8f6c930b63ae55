package halcyon

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every typed error below matches one of them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrFileExists        = errors.New("a file already exists")
	ErrInvalidKey        = errors.New("invalid file name")
	ErrMalformedDocument = errors.New("malformed document")
	ErrUnknownDatasource = errors.New("unknown datasource")
	ErrUnknownType       = errors.New("unknown model type")
)

// FieldError is a single failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every failed rule of a model. Error() reports the first
// message only.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return ErrValidation.Error()
	}
	return e.Errors[0].Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Messages groups messages by field.
func (e *ValidationError) Messages() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("A file already exists at [%s].", e.Path)
}

func (e *FileExistsError) Is(target error) bool { return target == ErrFileExists }

type InvalidKeyError struct {
	FileName string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("The specified file name [%s] is invalid.", e.FileName)
}

func (e *InvalidKeyError) Is(target error) bool { return target == ErrInvalidKey }

type InvalidExtensionError struct {
	Extension string
	Allowed   []string
}

func (e *InvalidExtensionError) Error() string {
	return fmt.Sprintf("The specified file extension [%s] is invalid. Allowed: %s.",
		e.Extension, strings.Join(e.Allowed, ", "))
}

func (e *InvalidExtensionError) Is(target error) bool { return target == ErrInvalidKey }

// MalformedDocumentError wraps a parse failure of a stored template.
type MalformedDocumentError struct {
	Path string
	Err  error
}

func (e *MalformedDocumentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed document: %v", e.Err)
	}
	return fmt.Sprintf("malformed document %s: %v", e.Path, e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

func (e *MalformedDocumentError) Is(target error) bool { return target == ErrMalformedDocument }

type UnknownDatasourceError struct {
	Name string
}

func (e *UnknownDatasourceError) Error() string {
	return fmt.Sprintf("datasource [%s] is not registered", e.Name)
}

func (e *UnknownDatasourceError) Is(target error) bool { return target == ErrUnknownDatasource }

type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("model type [%s] is not registered", e.Name)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }
