package models

import "time"

// CreateExperimentRequest is the body of POST /experiments.
type CreateExperimentRequest struct {
	Name string `json:"name" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Dimensions of a decoded image; nil when decoding failed.
type Dimensions struct {
	Width  *int `json:"width"`
	Height *int `json:"height"`
}

// UploadResponse is returned by POST /upload/:experiment_id. Numeric
// metrics are rounded to two decimals.
type UploadResponse struct {
	ID                  int64      `json:"id"`
	Filename            string     `json:"filename"`
	FocusScore          float64    `json:"focus_score"`
	ContrastLevel       float64    `json:"contrast_level"`
	ExposureLevel       float64    `json:"exposure_level"`
	IsMLReady           bool       `json:"is_ml_ready"`
	QualityReason       string     `json:"quality_reason"`
	Issues              []string   `json:"issues"`
	OrganoidDiameter    *float64   `json:"organoid_diameter"`
	OrganoidCircularity *float64   `json:"organoid_circularity"`
	Dimensions          Dimensions `json:"dimensions"`
	ThumbnailAvailable  bool       `json:"thumbnail_available"`
}

// ImageSummary is one row of GET /experiments/:id/images.
type ImageSummary struct {
	ID                      int64     `json:"id"`
	Filename                string    `json:"filename"`
	FocusScore              float64   `json:"focus_score"`
	ContrastLevel           float64   `json:"contrast_level"`
	ExposureLevel           float64   `json:"exposure_level"`
	IsMLReady               bool      `json:"is_ml_ready"`
	QualityReason           string    `json:"quality_reason"`
	OrganoidDiameter        *float64  `json:"organoid_diameter"`
	OrganoidShapeRegularity *float64  `json:"organoid_shape_regularity"`
	ImagingSessionID        string    `json:"imaging_session_id"`
	MicroscopeID            string    `json:"microscope_id"`
	OperatorID              string    `json:"operator_id"`
	CreatedAt               time.Time `json:"created_at"`
}

// ExportResponse wraps a rendered CSV document.
type ExportResponse struct {
	CSV      string `json:"csv"`
	Count    int    `json:"count"`
	Filename string `json:"filename"`
}

// ScriptResponse wraps a generated copy script.
type ScriptResponse struct {
	Script      string `json:"script"`
	ReadyImages int    `json:"ready_images"`
	TotalImages int    `json:"total_images"`
	Filename    string `json:"filename"`
}

// ImageDebugInfo reports whether a record's stored original is reachable.
type ImageDebugInfo struct {
	ID            int64  `json:"id"`
	Filename      string `json:"filename"`
	FilePath      string `json:"file_path"`
	FileExists    bool   `json:"file_exists"`
	ThumbnailPath string `json:"thumbnail_path"`
}
