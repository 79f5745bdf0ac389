package capture

import (
	"errors"

	"github.com/snaplate/backend/internal/history"
	"github.com/snaplate/backend/internal/translate"
)

// Kind is the failure taxonomy surfaced on the orchestration state.
type Kind string

const (
	KindInvalidImage           Kind = "invalid_image"
	KindInvalidEndpoint        Kind = "invalid_endpoint_config"
	KindNetwork                Kind = "network_failure"
	KindDecode                 Kind = "decode_failure"
	KindStorage                Kind = "storage_failure"
	KindTimeout                Kind = "timeout"
	KindImageSourceUnavailable Kind = "image_source_unavailable"
	KindCancelled              Kind = "cancelled"
	KindUnknown                Kind = "unknown"
)

var (
	ErrTimeout                = errors.New("translation timed out")
	ErrImageSourceUnavailable = errors.New("image source unavailable")
	ErrSuperseded             = errors.New("capture superseded by a newer one")
	ErrUnknownGeneration      = errors.New("unknown capture generation")
	ErrClosed                 = errors.New("orchestrator closed")
	ErrCancelled              = errors.New("translation cancelled")
)

// PermissionError reports that the user denied access to the camera.
type PermissionError struct{ Err error }

func (e *PermissionError) Error() string {
	if e.Err == nil {
		return "camera access denied"
	}
	return "camera access denied: " + e.Err.Error()
}

func (e *PermissionError) Unwrap() error { return e.Err }

func (e *PermissionError) Is(target error) bool { return target == ErrImageSourceUnavailable }

// SetupError reports that the camera could not be configured.
type SetupError struct{ Err error }

func (e *SetupError) Error() string {
	if e.Err == nil {
		return "camera setup failed"
	}
	return "camera setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrImageSourceUnavailable }

// Alert is the user-facing descriptor for a failure. It never carries
// internal error detail.
type Alert struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

var (
	alertTranslation = Alert{Title: "Translation Error", Message: "Failed to translate the image."}
	alertTimeout     = Alert{Title: "Translation Failed", Message: "The translation took too long. Please try again."}
	alertImage       = Alert{Title: "Image Error", Message: "Unable to load the selected image."}
	alertCamera      = Alert{Title: "Camera Access", Message: "Please allow camera access in Settings to use this feature."}
	alertCameraSetup = Alert{Title: "Camera Error", Message: "Unable to setup camera. Please try again."}
)

// Classify maps an error from any pipeline stage onto the taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrImageSourceUnavailable):
		return KindImageSourceUnavailable
	case errors.Is(err, history.ErrStorage):
		return KindStorage
	}

	switch translate.KindOf(err) {
	case translate.KindInvalidImage:
		return KindInvalidImage
	case translate.KindInvalidEndpoint:
		return KindInvalidEndpoint
	case translate.KindNetwork:
		return KindNetwork
	case translate.KindDecode:
		return KindDecode
	}
	return KindUnknown
}

// AlertFor picks the alert shown for err.
func AlertFor(err error) Alert {
	var perm *PermissionError
	var setup *SetupError
	switch {
	case errors.As(err, &perm):
		return alertCamera
	case errors.As(err, &setup):
		return alertCameraSetup
	}

	switch Classify(err) {
	case KindTimeout:
		return alertTimeout
	case KindImageSourceUnavailable:
		return alertImage
	default:
		return alertTranslation
	}
}
