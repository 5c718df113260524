package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"time"
)

// TesseractRecognizer implements Recognizer by shelling out to the
// tesseract binary, piping the downloaded image bytes in over stdin and
// reading recognised text back from stdout — the Tesseract OCR engine
// itself is an external collaborator (§1), so this is the thinnest glue
// that exercises it rather than a reimplementation.
//
// Grounded on original_source/core/ocr.py's pytess, which downloads the
// attachment and hands it to pytesseract (a Tesseract binding); Go's
// equivalent binding surface is the CLI itself via os/exec.
type TesseractRecognizer struct {
	BinaryPath string // defaults to "tesseract"
	HTTPClient *http.Client
}

// NewTesseractRecognizer creates a TesseractRecognizer using the tesseract
// binary found on PATH.
func NewTesseractRecognizer() *TesseractRecognizer {
	return &TesseractRecognizer{
		BinaryPath: "tesseract",
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// langMap translates the system's internal language codes to tesseract's
// trained-data language codes.
var langMap = map[string]string{
	"eng": "eng",
	"rus": "rus",
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, imageURL, language string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("ocr: build image request: %w", err)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: download image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr: read image body: %w", err)
	}

	lang, ok := langMap[language]
	if !ok {
		lang = "eng"
	}

	cmd := exec.CommandContext(ctx, t.BinaryPath, "stdin", "stdout", "-l", lang)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ocr: tesseract recognition failed: %w (%s)", err, stderr.String())
	}

	return stdout.String(), nil
}
