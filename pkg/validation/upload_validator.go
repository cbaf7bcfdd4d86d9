package validation

import (
	"path"
	"strings"

	apperrors "organoid-qc/internal/errors"
)

// allowedExtensions are matched case-insensitively against the upload
// filename. Content is not sniffed.
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".tiff": {},
}

// AllowedExtensions lists the accepted upload extensions in display order.
func AllowedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}
}

// ValidateUploadFilename rejects empty names and unsupported extensions
// before any decoding is attempted.
func ValidateUploadFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return apperrors.NewValidationError("filename cannot be empty", nil)
	}
	ext := strings.ToLower(path.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return apperrors.NewValidationError(
			"invalid file type, allowed: "+strings.Join(AllowedExtensions(), ", "), nil)
	}
	return nil
}

// SanitizeFilename strips parent-directory sequences and leading
// separators so the result is safe to use as one storage key component.
func SanitizeFilename(filename string) string {
	name := filename
	for {
		next := strings.ReplaceAll(name, "../", "")
		next = strings.ReplaceAll(next, `..\`, "")
		if next == name {
			break
		}
		name = next
	}
	return strings.TrimLeft(name, `/\`)
}

// ThumbnailName maps an original filename to its thumbnail key component.
func ThumbnailName(filename string) string {
	name := SanitizeFilename(filename)
	stem := strings.TrimSuffix(name, path.Ext(name))
	return stem + "_thumb.jpg"
}
