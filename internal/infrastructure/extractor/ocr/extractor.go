package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// minOCRWidth is the width below which scans are upscaled before recognition.
const minOCRWidth = 1200

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor recognizes text in images by shelling out to tesseract.
type Extractor struct {
	binary string
	tmpDir string
	run    runner
}

func NewExtractor(binary string) *Extractor {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	return &Extractor{binary: binary, run: runCommand}
}

func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode image", err)
	}

	tmp, err := os.MkdirTemp(e.tmpDir, "docflow-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr workspace: %w", err)
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, "page.png")
	if err := imaging.Save(Preprocess(src), input); err != nil {
		return "", fmt.Errorf("write ocr input: %w", err)
	}

	out, err := e.run(ctx, e.binary, input, "stdout", "--psm", "6")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("run %s: %w", e.binary, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Preprocess converts to grayscale, upscales narrow scans and raises contrast.
func Preprocess(src image.Image) image.Image {
	img := imaging.Grayscale(src)
	if w := img.Bounds().Dx(); w > 0 && w < minOCRWidth {
		img = imaging.Resize(img, w*2, 0, imaging.Lanczos)
	}
	img = imaging.Sharpen(img, 0.5)
	return imaging.AdjustContrast(img, 25)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("tesseract not installed: %w", err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
