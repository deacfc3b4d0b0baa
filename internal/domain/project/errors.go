package project

import (
	"errors"

	"github.com/GriffinCanCode/api-diagnostics/internal/domain/detect"
)

var (
	// ErrNotInitialized is returned when the project has no state record
	ErrNotInitialized = errors.New("project not initialized")

	// ErrAlreadyInitialized is returned by Init without Force on an initialized project
	ErrAlreadyInitialized = errors.New("project already initialized")

	// ErrNoFrameworks is returned by Init when detection finds nothing
	ErrNoFrameworks = detect.ErrNoFrameworks

	// ErrNothingToInject is returned when frameworks were found but no entry file could be instrumented
	ErrNothingToInject = errors.New("no instrumentable entry files found")
)
