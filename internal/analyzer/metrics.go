package analyzer

import (
	"errors"

	apperrors "organoid-qc/internal/errors"
	"organoid-qc/internal/imaging"
	"organoid-qc/internal/logger"
)

var sharedCalculator = NewMetricsCalculator()

// FocusScore decodes data and returns its Laplacian variance. An
// undecodable image is not admissible, so failure is an InvalidImage error.
func FocusScore(data []byte) (float64, error) {
	dec, err := imaging.Decode(data)
	if err != nil {
		return 0, invalidImage(err)
	}
	return sharedCalculator.CalculateLaplacianVariance(dec.Gray), nil
}

// ContrastLevel returns the intensity standard deviation, or 0 when the
// bytes do not decode.
func ContrastLevel(data []byte) float64 {
	dec, err := imaging.Decode(data)
	if err != nil {
		logger.WithError(err).Debug("Contrast unavailable")
		return 0
	}
	return sharedCalculator.CalculateContrast(dec.Gray)
}

// ExposureLevel returns the mean intensity, or 0 when the bytes do not
// decode.
func ExposureLevel(data []byte) float64 {
	dec, err := imaging.Decode(data)
	if err != nil {
		logger.WithError(err).Debug("Exposure unavailable")
		return 0
	}
	return sharedCalculator.CalculateExposure(dec.Gray)
}

// EstimateOrganoidProperties returns diameter and circularity of the
// largest foreground region. Both are nil when the bytes do not decode or
// nothing exceeds the threshold.
func EstimateOrganoidProperties(data []byte) (diameter, circularity *float64) {
	dec, err := imaging.Decode(data)
	if err != nil {
		logger.WithError(err).Debug("Organoid shape unavailable")
		return nil, nil
	}
	return sharedCalculator.EstimateOrganoid(dec.Gray)
}

func invalidImage(err error) error {
	if errors.Is(err, imaging.ErrDecode) {
		return apperrors.NewInvalidImageError("Invalid image file", err)
	}
	return apperrors.NewProcessingError("Failed to read image", err)
}
