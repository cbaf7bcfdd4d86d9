package repository

import "errors"

var (
	// ErrExperimentNotFound indicates the experiment was not found
	ErrExperimentNotFound = errors.New("experiment not found")

	// ErrImageNotFound indicates the image was not found
	ErrImageNotFound = errors.New("image not found")

	// ErrUnsupportedDriver indicates an unknown database driver name
	ErrUnsupportedDriver = errors.New("unsupported database driver")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
