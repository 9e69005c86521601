package imageproxy

import "errors"

var (
	// ErrInvalidPreset is returned when a preset name is not in the registry.
	ErrInvalidPreset = errors.New("invalid image preset")

	// ErrEmptySource is returned when the image URI normalizes to nothing.
	ErrEmptySource = errors.New("image source is empty")

	// ErrUnsupportedSource is returned for sources that cannot be fetched over HTTP,
	// such as inline data: URIs.
	ErrUnsupportedSource = errors.New("image source cannot be proxied")

	// ErrSourceNotFound is returned when every gateway answered 404.
	ErrSourceNotFound = errors.New("image not found on any gateway")

	// ErrSourceFetchFailed is returned when no gateway produced the image.
	ErrSourceFetchFailed = errors.New("failed to fetch source image")

	// ErrSourceTimeout is returned when the fetch deadline expired.
	ErrSourceTimeout = errors.New("source image request timed out")

	// ErrUnsupportedFormat is returned when the source bytes are not a decodable raster image.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrImageTooLarge is returned when the source image exceeds the configured size limit.
	ErrImageTooLarge = errors.New("source image exceeds size limit")

	// ErrProcessingFailed is returned when resizing or encoding fails.
	ErrProcessingFailed = errors.New("image processing failed")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)
