// Package predict is the transport to the remote posture inference service.
//
// The service exposes two endpoints:
//
//	POST {base}/predict   multipart form, field "image" (JPEG bytes)
//	GET  {base}/ping      liveness, any 2xx
//
// and answers /predict with {"label": "...", "class": 0|1, "confidence": 0.97}.
//
// Example usage:
//
//	client, _ := predict.NewClient(predict.WithBaseURL("http://localhost:5000"))
//	defer client.Close()
//
//	p, err := client.Predict(ctx, jpegBytes)
//	if errors.Is(err, predict.ErrTransport) {
//	    // skip this tick
//	}
package predict

import "context"

// Class is the posture class reported by the service.
type Class int

const (
	// ClassBad is a bad posture reading.
	ClassBad Class = 0
	// ClassGood is a good posture reading.
	ClassGood Class = 1
)

// String returns a short name for the class.
func (c Class) String() string {
	switch c {
	case ClassBad:
		return "bad"
	case ClassGood:
		return "good"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	return c == ClassBad || c == ClassGood
}

// Prediction is the classification result for one captured frame.
type Prediction struct {
	// Label is the human-readable class name, e.g. "Bad Posture".
	Label string `json:"label"`

	// Class is 0 for bad and 1 for good.
	Class Class `json:"class"`

	// Confidence is the model's score for Class, 0 when not reported.
	Confidence float64 `json:"confidence,omitempty"`
}

// Bad reports whether the prediction is a bad posture reading.
func (p Prediction) Bad() bool {
	return p.Class == ClassBad
}

// Predictor sends frames for classification.
type Predictor interface {
	// Predict posts one JPEG frame and returns the parsed prediction.
	Predict(ctx context.Context, jpeg []byte) (*Prediction, error)

	// Ping checks that the service is reachable.
	Ping(ctx context.Context) error
}
