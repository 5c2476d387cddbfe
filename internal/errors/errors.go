// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict means a conditional vendor write lost a race.
	ErrVersionConflict = errors.New("vendor record was modified concurrently")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrInvalidStatus   = errors.New("invalid vendor status")
)

type ErrVendorNotFound struct {
	VendorID string
}

func (e *ErrVendorNotFound) Error() string {
	return fmt.Sprintf("vendor with ID %s not found", e.VendorID)
}

func NewVendorNotFound(id string) error {
	return &ErrVendorNotFound{VendorID: id}
}

type ErrTaskNotFound struct {
	TaskID string
}

func (e *ErrTaskNotFound) Error() string {
	return fmt.Sprintf("task with ID %s not found", e.TaskID)
}

func NewTaskNotFound(id string) error {
	return &ErrTaskNotFound{TaskID: id}
}

// IsVendorNotFound reports whether err (or anything it wraps) is ErrVendorNotFound.
func IsVendorNotFound(err error) bool {
	var nf *ErrVendorNotFound
	return errors.As(err, &nf)
}

func IsTaskNotFound(err error) bool {
	var nf *ErrTaskNotFound
	return errors.As(err, &nf)
}
