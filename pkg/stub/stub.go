// Package stub is a stand-in inference service with the same HTTP
// contract as the real posture model server, for local development and
// end-to-end tests.
package stub

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// Server answers /ping and /predict.
type Server struct {
	app        *fiber.App
	classifier Classifier
	logger     *slog.Logger

	requests atomic.Int64
}

// NewServer creates a stub server using classifier.
func NewServer(classifier Classifier, logger *slog.Logger) *Server {
	if classifier == nil {
		classifier = Fixed(1)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		classifier: classifier,
		logger:     logger.With("component", "stub"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Posture stub",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024,
	})
	app.Use(cors.New())

	app.Get("/ping", s.handlePing)
	app.Options("/predict", s.handlePreflight)
	app.Post("/predict", s.handlePredict)

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("stub inference server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Requests returns how many predictions were served.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (s *Server) handlePreflight(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// PredictResponse is the /predict body.
type PredictResponse struct {
	Class      int     `json:"class"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

func (s *Server) handlePredict(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image provided"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image provided"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No image provided"})
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Warn("undecodable image", "bytes", len(data), "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid image"})
	}

	class, conf := s.classifier.Classify(img)
	if !class.Valid() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Invalid class"})
	}
	n := s.requests.Add(1)
	s.logger.Debug("prediction", "n", n, "format", format, "class", class)

	return c.JSON(PredictResponse{
		Class:      int(class),
		Confidence: math.Round(conf*10000) / 10000,
		Label:      Labels[class],
	})
}
