package stub

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/teslashibe/go-posture/internal/log"
	"github.com/teslashibe/go-posture/pkg/predict"
)

func solidJPEG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "frame.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestPing(t *testing.T) {
	s := NewServer(nil, log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "pong" {
		t.Errorf("ping = %d %q", resp.StatusCode, body)
	}
}

func TestPreflight(t *testing.T) {
	s := NewServer(nil, log.Discard())

	resp, err := s.App().Test(httptest.NewRequest("OPTIONS", "/predict", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 204 {
		t.Errorf("OPTIONS = %d, want 204", resp.StatusCode)
	}
}

func TestPredictRejectsMissingImage(t *testing.T) {
	s := NewServer(nil, log.Discard())

	body, ct := multipartBody(t, "file", []byte("x"))
	req := httptest.NewRequest("POST", "/predict", body)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}

	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != 400 || out["error"] != "No image provided" {
		t.Errorf("missing image = %d %v", resp.StatusCode, out)
	}
}

func TestPredictRejectsGarbage(t *testing.T) {
	s := NewServer(nil, log.Discard())

	body, ct := multipartBody(t, "image", []byte("not a jpeg"))
	req := httptest.NewRequest("POST", "/predict", body)
	req.Header.Set("Content-Type", ct)
	resp, _ := s.App().Test(req)
	if resp.StatusCode != 400 {
		t.Errorf("garbage image = %d, want 400", resp.StatusCode)
	}
}

func TestPredictFixed(t *testing.T) {
	s := NewServer(Fixed(predict.ClassBad), log.Discard())

	body, ct := multipartBody(t, "image", solidJPEG(t, color.White))
	req := httptest.NewRequest("POST", "/predict", body)
	req.Header.Set("Content-Type", ct)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Class != 0 || out.Label != "Bad Posture" || out.Confidence != 1 {
		t.Errorf("response = %+v", out)
	}
	if s.Requests() != 1 {
		t.Errorf("requests = %d", s.Requests())
	}
}

func TestSequence(t *testing.T) {
	seq, err := ParseSequence("bb g")
	if err != nil {
		t.Fatal(err)
	}
	want := []predict.Class{predict.ClassBad, predict.ClassBad, predict.ClassGood, predict.ClassBad}
	for i, w := range want {
		if got, _ := seq.Classify(nil); got != w {
			t.Errorf("frame %d = %v, want %v", i, got, w)
		}
	}

	for _, bad := range []string{"", "bxg", "   "} {
		if _, err := ParseSequence(bad); err == nil {
			t.Errorf("ParseSequence(%q) should fail", bad)
		}
	}
}

func TestBrightness(t *testing.T) {
	b := Brightness{Threshold: 60}

	fill := func(c color.Color) image.Image {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, c)
			}
		}
		return img
	}

	if c, conf := b.Classify(fill(color.Black)); c != predict.ClassBad || conf != 1 {
		t.Errorf("black frame = %v %.2f", c, conf)
	}
	if c, _ := b.Classify(fill(color.Gray{Y: 10})); c != predict.ClassBad {
		t.Errorf("dark frame = %v", c)
	}
	if c, _ := b.Classify(fill(color.Gray{Y: 200})); c != predict.ClassGood {
		t.Errorf("light frame = %v", c)
	}
}

// The stub and the client agree on the wire contract.
func TestClientAgainstStub(t *testing.T) {
	seq, _ := ParseSequence("bg")
	s := NewServer(seq, log.Discard())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.App().Listener(ln)
	defer s.Shutdown()

	client, err := predict.NewClient(
		predict.WithBaseURL("http://"+ln.Addr().String()),
		predict.WithLogger(log.Discard()),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	frame := solidJPEG(t, color.Gray{Y: 128})
	p, err := client.Predict(ctx, frame)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !p.Bad() || p.Label != "Bad Posture" {
		t.Errorf("first prediction = %+v", p)
	}

	p, err = client.Predict(ctx, frame)
	if err != nil {
		t.Fatal(err)
	}
	if p.Bad() || p.Label != "Good Posture" {
		t.Errorf("second prediction = %+v", p)
	}
}
