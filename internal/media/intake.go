package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/autovisiontech/dealership/internal/observability"
	"github.com/autovisiontech/dealership/internal/platform/httpx"
)

// DefaultMaxFileBytes caps a single upload at 1 MiB.
const DefaultMaxFileBytes int64 = 1 << 20

const multipartMemory = 8 << 20

var allowedTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Intake validates multipart uploads and writes them to the store.
type Intake struct {
	store        Store
	maxFileBytes int64
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewIntake builds an Intake. A non-positive maxFileBytes uses DefaultMaxFileBytes.
func NewIntake(store Store, maxFileBytes int64, logger *slog.Logger, metrics *observability.Metrics) *Intake {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &Intake{store: store, maxFileBytes: maxFileBytes, logger: logger, metrics: metrics}
}

// Limit bounds the request body to what MaxFiles uploads plus form fields can use.
func (in *Intake) Limit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(MaxFiles)*in.maxFileBytes+multipartMemory)
}

// Receive stores every file sent under field and returns their references in
// upload order. A request that is not multipart carries no files. When any file
// is rejected the files already stored by this call are removed first.
func (in *Intake) Receive(r *http.Request, field string) ([]Reference, error) {
	headers, err := in.filesFor(r, field)
	if err != nil || len(headers) == 0 {
		return nil, err
	}
	if len(headers) > MaxFiles {
		in.metrics.ObserveMediaRejection("file_count")
		return nil, fmt.Errorf("%w: maximum %d images allowed", httpx.ErrValidation, MaxFiles)
	}

	kind := KindForField(field)
	stored := make([]Reference, 0, len(headers))
	for _, hdr := range headers {
		ref, err := in.receiveOne(r, hdr, kind)
		if err != nil {
			if len(stored) > 0 {
				observeReport(in.metrics, "rollback", in.store.DeleteMany(r.Context(), stored))
			}
			return nil, err
		}
		stored = append(stored, ref)
	}
	in.logger.Debug("uploads stored", slog.String("field", field), slog.Int("count", len(stored)))
	return stored, nil
}

func (in *Intake) filesFor(r *http.Request, field string) ([]*multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if errors.Is(err, http.ErrNotMultipart) {
				return nil, nil
			}
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				in.metrics.ObserveMediaRejection("file_size")
				return nil, fmt.Errorf("%w: request body too large", httpx.ErrValidation)
			}
			return nil, fmt.Errorf("%w: malformed multipart body: %v", httpx.ErrValidation, err)
		}
	}
	if r.MultipartForm == nil {
		return nil, nil
	}
	return r.MultipartForm.File[field], nil
}

func (in *Intake) receiveOne(r *http.Request, hdr *multipart.FileHeader, kind Kind) (Reference, error) {
	if hdr.Size > in.maxFileBytes {
		in.metrics.ObserveMediaRejection("file_size")
		return "", fmt.Errorf("%w: %s exceeds %d bytes", httpx.ErrValidation, hdr.Filename, in.maxFileBytes)
	}
	f, err := hdr.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", hdr.Filename, err)
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("detect upload type: %w", err)
	}
	if !mimetype.EqualsAny(mt.String(), allowedTypes...) {
		in.metrics.ObserveMediaRejection("file_type")
		return "", fmt.Errorf("%w: only image files (jpg, jpeg, png, webp, gif) are allowed", httpx.ErrValidation)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}

	name := strings.TrimSuffix(hdr.Filename, filepath.Ext(hdr.Filename)) + mt.Extension()
	return in.store.Put(r.Context(), f, kind, name)
}
