package camera

import "context"

type unavailableSource struct{}

// Unavailable returns a source that fails every call with
// ErrBackendUnavailable. Binaries built without a capture backend use it.
func Unavailable() Source {
	return unavailableSource{}
}

func (unavailableSource) Enumerate(ctx context.Context) ([]Device, error) {
	return nil, ErrBackendUnavailable
}

func (unavailableSource) Open(ctx context.Context, deviceID string, cfg Config) (Stream, error) {
	return nil, ErrBackendUnavailable
}

func (unavailableSource) OpenDefault(ctx context.Context, cfg Config) (Stream, error) {
	return nil, ErrBackendUnavailable
}
