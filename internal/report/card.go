package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/solarcast/internal/models"
	"github.com/lox/solarcast/internal/preprocess"
)

var (
	fontTitle   font.Face
	fontRegular font.Face
	fontOnce    sync.Once
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		fontTitle, fontErr = newFace(gobold.TTF, 44)
		if fontErr != nil {
			fontErr = fmt.Errorf("load bold face: %w", fontErr)
			return
		}
		fontRegular, fontErr = newFace(goregular.TTF, 28)
		if fontErr != nil {
			fontErr = fmt.Errorf("load regular face: %w", fontErr)
		}
	})
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

const (
	CardWidth  = 1200
	CardHeight = 630
)

// CardData is what the summary card shows.
type CardData struct {
	Stats       preprocess.Stats
	Best        *models.ModelScore
	GeneratedAt time.Time
}

// RenderCard draws the summary as a PNG.
func RenderCard(data CardData) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	drawBackground(img)

	white := color.RGBA{255, 255, 255, 255}
	muted := color.RGBA{200, 200, 200, 255}
	accent := color.RGBA{255, 170, 102, 255}

	drawText(img, "Solar Performance Summary", 60, 100, white, fontTitle)

	y := 190
	for _, line := range cardLines(data) {
		drawText(img, line, 60, y, muted, fontRegular)
		y += 52
	}
	if data.Best != nil {
		best := fmt.Sprintf("Best model: %s (Avg R² %.3f)", data.Best.Model, data.Best.AvgR2)
		drawText(img, best, 60, y+20, accent, fontRegular)
	}
	if !data.GeneratedAt.IsZero() {
		drawText(img, data.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), 60, CardHeight-40, muted, fontRegular)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode summary card: %w", err)
	}
	return buf.Bytes(), nil
}

func cardLines(data CardData) []string {
	s := data.Stats
	return []string{
		fmt.Sprintf("Records: %d", s.Records),
		fmt.Sprintf("Cities: %d", s.Cities),
		"Avg Irradiance: " + formatAvg(s.AvgIrradiance, "kWh/m²"),
		"Avg DC Power: " + formatAvg(s.AvgDCPower, "kW"),
	}
}

func formatAvg(v float64, unit string) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// WriteCard renders the card to path, creating parent directories.
func WriteCard(path string, data CardData) error {
	b, err := RenderCard(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// drawBackground paints a dusk gradient from deep blue to warm amber.
func drawBackground(img *image.RGBA) {
	bounds := img.Bounds()
	h := bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		progress := float64(y-bounds.Min.Y) / float64(h)
		progress = progress * progress
		c := color.RGBA{
			R: uint8(20 + progress*90),
			G: uint8(24 + progress*40),
			B: uint8(48 - progress*20),
			A: 255,
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
