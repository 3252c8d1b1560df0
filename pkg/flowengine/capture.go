package flowengine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sudorandom/flowscope/pkg/parcoords"
	"github.com/sudorandom/flowscope/pkg/render"
)

// CaptureName is the file name used for a capture taken at ts.
func CaptureName(view string, format render.Format, ts time.Time) string {
	return fmt.Sprintf("flowscope-%s-%s.%s", view, ts.Format("20060102-150405"), format)
}

// RenderGraph draws one graph frame onto a headless surface and returns the encoded image.
func RenderGraph(format render.Format, w, h int, r *render.Renderer, f render.Frame, vt render.ViewTransform) ([]byte, error) {
	s, err := render.NewChartSurface(format, w, h)
	if err != nil {
		return nil, err
	}
	r.Render(s, f, vt, render.Cursor{})
	return encode(s)
}

// RenderPlot draws a parallel-coordinates plot onto a headless surface and returns the encoded image.
func RenderPlot(format render.Format, w, h int, p *parcoords.Plot, colors *render.ColorRegistry, vt render.ViewTransform) ([]byte, error) {
	s, err := render.NewChartSurface(format, w, h)
	if err != nil {
		return nil, err
	}
	parcoords.Draw(s, p, colors, vt)
	return encode(s)
}

func encode(s *render.ChartSurface) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", s.Format(), err)
	}
	return buf.Bytes(), nil
}

// writeCapture stores data under dir in the background, logging the outcome.
func writeCapture(dir, name string, data []byte, log *zap.SugaredLogger) {
	go func() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Errorf("Error creating capture directory: %v", err)
			return
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Errorf("Error writing capture: %v", err)
			return
		}
		log.Infof("Captured frame: %s", path)
	}()
}
