// Package attachment turns a user-provided document into a transmittable
// payload plus a composed analysis prompt.
package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/reishilabs/ganochat/internal/lang"
	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrUnsupportedType = errors.New("unsupported attachment type")
	ErrTooLarge        = errors.New("attachment exceeds size limit")
)

// AcceptedTypes is the MIME filter applied by the input surface. The encoder
// enforces it as a soft constraint: the declared type is checked, content is
// not re-validated.
var AcceptedTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/webp",
}

// Accepted reports whether a MIME type passes the filter.
func Accepted(mimeType string) bool {
	for _, t := range AcceptedTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}

// Payload is the transmittable half of an analysis request.
type Payload struct {
	Data     string `json:"data"` // base64 content
	MimeType string `json:"mimeType"`
}

// analysisTemplate is the fixed instruction composed around every uploaded
// document. The trailing directive pins the response language.
const analysisTemplate = `[MEDICAL ANALYSIS REQUEST]
I am uploading a bloodwork document (PDF/Image).

Please analyze this document comprehensively.
1. Identify all markers outside standard reference ranges.
2. Provide a detailed medical and nutritional assessment based on these values.
3. Suggest specific dietary changes, lifestyle adjustments, and supplements (including medicinal mushrooms like Reishi) that could help correct these imbalances.
4. Explain the potential root causes for any abnormalities.

Assume the role of an expert functional medicine nutritionist.

IMPORTANT: Provide the response in %s.`

// AnalysisPrompt returns the instruction text for the given language.
func AnalysisPrompt(language lang.Language) string {
	return fmt.Sprintf(analysisTemplate, language.DisplayName())
}

// Encoder converts uploaded files into analysis requests.
type Encoder struct {
	maxSize int64
	logger  zerolog.Logger
}

// NewEncoder creates an encoder. maxSize <= 0 disables the size check.
func NewEncoder(maxSize int64, logger zerolog.Logger) *Encoder {
	return &Encoder{
		maxSize: maxSize,
		logger:  logger.With().Str("component", "attachment").Logger(),
	}
}

// ProcessFile reads a file from disk and composes the analysis request.
// Read failures are recoverable: the caller surfaces them to the user and
// the UI never sticks in a processing state.
func (e *Encoder) ProcessFile(path string, language lang.Language) (string, Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("Failed to open attachment")
		return "", Payload{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return e.Process(f, mimeType, language)
}

// Process reads content from r and composes the analysis request. mimeType
// is the declared type; when empty it is sniffed from the content.
func (e *Encoder) Process(r io.Reader, mimeType string, language lang.Language) (string, Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to read attachment")
		return "", Payload{}, fmt.Errorf("read attachment: %w", err)
	}

	if e.maxSize > 0 && int64(len(data)) > e.maxSize {
		return "", Payload{}, ErrTooLarge
	}

	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !Accepted(mimeType) {
		return "", Payload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	payload := Payload{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}

	e.logger.Info().
		Str("mimeType", mimeType).
		Int("bytes", len(data)).
		Str("language", string(language)).
		Msg("Attachment encoded")

	return AnalysisPrompt(language), payload, nil
}
