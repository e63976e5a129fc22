package stub

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/teslashibe/go-posture/pkg/predict"
)

// Labels indexed by class.
var Labels = [2]string{"Bad Posture", "Good Posture"}

// Classifier decides the class of one decoded frame.
type Classifier interface {
	Classify(img image.Image) (predict.Class, float64)
}

// Fixed always answers the same class.
type Fixed predict.Class

// Classify implements Classifier.
func (f Fixed) Classify(image.Image) (predict.Class, float64) {
	return predict.Class(f), 1
}

// Sequence cycles through a scripted list of classes, one per frame.
type Sequence struct {
	mu      sync.Mutex
	classes []predict.Class
	next    int
}

// ParseSequence reads a pattern of 'b' (bad) and 'g' (good) characters,
// e.g. "bbbbbbbbbbbbggg". Whitespace is ignored.
func ParseSequence(pattern string) (*Sequence, error) {
	s := &Sequence{}
	for i, r := range strings.ToLower(pattern) {
		switch r {
		case 'b':
			s.classes = append(s.classes, predict.ClassBad)
		case 'g':
			s.classes = append(s.classes, predict.ClassGood)
		case ' ', '\t', ',':
		default:
			return nil, fmt.Errorf("stub: invalid pattern character %q at %d", r, i)
		}
	}
	if len(s.classes) == 0 {
		return nil, fmt.Errorf("stub: empty pattern")
	}
	return s, nil
}

// Classify implements Classifier.
func (s *Sequence) Classify(image.Image) (predict.Class, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.classes[s.next]
	s.next = (s.next + 1) % len(s.classes)
	return c, 1
}

// Brightness calls a frame bad when its mean luma is below Threshold
// (0..255). Covering the camera is an easy way to fake slouching.
type Brightness struct {
	Threshold float64
}

// Classify implements Classifier.
func (b Brightness) Classify(img image.Image) (predict.Class, float64) {
	luma := MeanLuma(img)
	if luma < b.Threshold {
		return predict.ClassBad, confidence(b.Threshold-luma, b.Threshold)
	}
	return predict.ClassGood, confidence(luma-b.Threshold, 255-b.Threshold)
}

func confidence(dist, span float64) float64 {
	if span <= 0 {
		return 1
	}
	c := 0.5 + 0.5*dist/span
	if c > 1 {
		c = 1
	}
	return c
}

// MeanLuma returns the average Rec. 601 luma of img, sampling every
// fourth pixel in each direction.
func MeanLuma(img image.Image) float64 {
	b := img.Bounds()
	var sum float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y += 4 {
		for x := b.Min.X; x < b.Max.X; x += 4 {
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
