package service

import (
	"context"
	"errors"

	"organoid-qc/internal/analyzer"
	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/repository"
)

// storeError maps repository failures onto application errors.
func storeError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrExperimentNotFound):
		return apperrors.NewNotFoundError("experiment not found", err)
	case errors.Is(err, repository.ErrImageNotFound):
		return apperrors.NewNotFoundError("image not found", err)
	case errors.Is(err, repository.ErrRepositoryUnavailable):
		return apperrors.NewUnavailableError("database unavailable", err)
	}
	return apperrors.NewInternalError(message, err)
}

// scoreError keeps InvalidImage errors from the scorer and maps pool and
// context failures.
func scoreError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, analyzer.ErrPoolClosed):
		return apperrors.NewUnavailableError("scoring is shutting down", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewUnavailableError("scoring did not complete", err)
	}
	return apperrors.NewProcessingError("failed to score image", err)
}
