package ocr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// urlRE extracts the first bare HTTP(S) URL in a message body, mirroring
// original_source/core/ocr.py's process_pics fallback (`re.findall(r'(https?://\S+)', ...)`).
var urlRE = regexp.MustCompile(`https?://\S+`)

// FirstURL returns the first HTTP(S) URL found in content, or "" if none.
func FirstURL(content string) string {
	m := urlRE.FindString(content)
	return strings.TrimRight(m, ".,!?)>\"'")
}

// ProbeURL implements §4.7's alternative admission path: when a message
// carries no eligible attachment, the first URL in its content is HEAD-ed to
// check content-type/length, then GET-ed and decoded to confirm pixel
// dimensions, before being treated as an OCR candidate.
//
// Grounded on original_source/core/ocr.py's process_pics else-branch
// (requests.head + check_image_dimensions via PIL); imaging.Decode plays the
// role PIL.Image.open played there, bounded by MaxAttachmentBytes so a
// misbehaving server can't be used to exhaust memory via io.LimitReader.
func ProbeURL(ctx context.Context, client *http.Client, url string) (AttachmentCandidate, error) {
	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return AttachmentCandidate{}, err
	}
	headResp, err := client.Do(headReq)
	if err != nil {
		return AttachmentCandidate{}, err
	}
	headResp.Body.Close()

	contentType := headResp.Header.Get("Content-Type")
	contentLength, _ := strconv.ParseInt(headResp.Header.Get("Content-Length"), 10, 64)
	if !strings.HasPrefix(contentType, "image/") {
		return AttachmentCandidate{}, fmt.Errorf("ocr: url probe: not an image content-type: %q", contentType)
	}
	if contentLength <= 0 || contentLength >= MaxAttachmentBytes {
		return AttachmentCandidate{}, fmt.Errorf("ocr: url probe: content-length %d out of bounds", contentLength)
	}

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AttachmentCandidate{}, err
	}
	getResp, err := client.Do(getReq)
	if err != nil {
		return AttachmentCandidate{}, err
	}
	defer getResp.Body.Close()

	img, err := imaging.Decode(io.LimitReader(getResp.Body, MaxAttachmentBytes))
	if err != nil {
		return AttachmentCandidate{}, fmt.Errorf("ocr: url probe: decode failed: %w", err)
	}
	bounds := img.Bounds()

	return AttachmentCandidate{
		ContentType: contentType,
		SizeBytes:   contentLength,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
	}, nil
}
