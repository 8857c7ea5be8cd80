// Package media owns stored uploads: where files live on disk, how they are
// addressed, and how a resource's image set converges to a new target.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/autovisiontech/dealership/internal/observability"
)

// Kind is the storage namespace of a file.
type Kind string

// Storage namespaces.
const (
	KindProfiles Kind = "profiles"
	KindGallery  Kind = "cars"
	KindOthers   Kind = "others"
)

// Kinds lists every storage namespace.
func Kinds() []Kind {
	return []Kind{KindProfiles, KindGallery, KindOthers}
}

func (k Kind) valid() bool {
	switch k {
	case KindProfiles, KindGallery, KindOthers:
		return true
	}
	return false
}

// KindForField maps a multipart field name to its namespace.
func KindForField(field string) Kind {
	switch field {
	case "profileImage", "image":
		return KindProfiles
	case "images":
		return KindGallery
	default:
		return KindOthers
	}
}

// Reference is the public URL of a stored file.
type Reference string

// MediaSet is the ordered list of references owned by one resource.
type MediaSet []Reference

// Strings converts the set for persistence.
func (s MediaSet) Strings() []string {
	out := make([]string, len(s))
	for i, ref := range s {
		out[i] = string(ref)
	}
	return out
}

// MediaSetFromStrings converts persisted values back into a set.
func MediaSetFromStrings(values []string) MediaSet {
	out := make(MediaSet, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, Reference(v))
		}
	}
	return out
}

// ErrInvalidReference is returned for references that do not point inside the upload root.
var ErrInvalidReference = errors.New("media: invalid reference")

// Store persists and removes uploaded files.
type Store interface {
	Put(ctx context.Context, content io.Reader, kind Kind, originalName string) (Reference, error)
	Delete(ctx context.Context, ref Reference) error
	DeleteMany(ctx context.Context, refs []Reference) DeleteReport
	ResolveKind(ref Reference) Kind
}

// DeleteReport summarises a best-effort batch deletion.
type DeleteReport struct {
	Deleted []Reference
	Failed  map[Reference]error
}

// OK reports whether every deletion succeeded.
func (r DeleteReport) OK() bool {
	return len(r.Failed) == 0
}

// StoredFile describes one file found under the upload root.
type StoredFile struct {
	Ref     Reference
	Kind    Kind
	Name    string
	Size    int64
	ModTime time.Time
}

const deleteConcurrency = 8

// DiskStore keeps files under root/{kind}/{name} and addresses them as
// {baseURL}/uploads/{kind}/{name}.
type DiskStore struct {
	root    string
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewDiskStore creates the namespace directories under root.
func NewDiskStore(root, baseURL string, logger *slog.Logger) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("media: upload root required")
	}
	for _, kind := range Kinds() {
		if err := os.MkdirAll(filepath.Join(root, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("media: create %s dir: %w", kind, err)
		}
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Root returns the upload root directory.
func (s *DiskStore) Root() string {
	return s.root
}

// URL builds the reference of name in kind.
func (s *DiskStore) URL(kind Kind, name string) Reference {
	return Reference(s.baseURL + "/uploads/" + string(kind) + "/" + name)
}

// Put writes content to a fresh file. Existing files are never overwritten.
func (s *DiskStore) Put(ctx context.Context, content io.Reader, kind Kind, originalName string) (Reference, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !kind.valid() {
		kind = KindOthers
	}
	name := buildFilename(originalName, s.now())
	path := filepath.Join(s.root, string(kind), name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("media: create %s: %w", name, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("media: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("media: close %s: %w", name, err)
	}
	return s.URL(kind, name), nil
}

// Delete removes the file behind ref. Missing files are not an error.
func (s *DiskStore) Delete(_ context.Context, ref Reference) error {
	if strings.TrimSpace(string(ref)) == "" {
		return nil
	}
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("media: delete %s: %w", ref, err)
	}
	return nil
}

// DeleteMany attempts every deletion independently and reports the result.
func (s *DiskStore) DeleteMany(ctx context.Context, refs []Reference) DeleteReport {
	refs = uniqueRefs(refs)
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(deleteConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			errs[i] = s.Delete(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	report := DeleteReport{Deleted: make([]Reference, 0, len(refs))}
	for i, ref := range refs {
		if errs[i] == nil {
			report.Deleted = append(report.Deleted, ref)
			continue
		}
		if report.Failed == nil {
			report.Failed = make(map[Reference]error)
		}
		report.Failed[ref] = errs[i]
		s.logger.Warn("media delete failed", slog.String("ref", string(ref)), slog.Any("error", errs[i]))
	}
	return report
}

// ResolveKind derives the namespace from the path segment after "uploads".
// References without one fall back to profiles.
func (s *DiskStore) ResolveKind(ref Reference) Kind {
	kind, _, err := ParseReference(ref)
	if err != nil || !kind.valid() {
		return KindProfiles
	}
	return kind
}

// Path maps ref to its location on disk.
func (s *DiskStore) Path(ref Reference) (string, error) {
	kind, name, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	if !kind.valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidReference, kind)
	}
	return filepath.Join(s.root, string(kind), name), nil
}

// Walk calls fn for every regular file in every namespace, sorted by name.
func (s *DiskStore) Walk(ctx context.Context, fn func(StoredFile) error) error {
	for _, kind := range Kinds() {
		entries, err := os.ReadDir(filepath.Join(s.root, string(kind)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("media: read %s: %w", kind, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !entry.Type().IsRegular() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return err
			}
			file := StoredFile{
				Ref:     s.URL(kind, entry.Name()),
				Kind:    kind,
				Name:    entry.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
			if err := fn(file); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseReference splits ref into kind and file name. The host part is ignored
// so references survive a base URL change.
func ParseReference(ref Reference) (Kind, string, error) {
	raw := strings.TrimSpace(string(ref))
	if raw == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	idx := -1
	for i, part := range parts {
		if part == "uploads" {
			idx = i
			break
		}
	}
	if idx == -1 || len(parts) != idx+3 {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidReference, raw)
	}
	kind, name := Kind(parts[idx+1]), parts[idx+2]
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `\`) || kind == "" || kind == "." || kind == ".." {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidReference, raw)
	}
	return kind, name, nil
}

// FileKey identifies a stored file independently of the base URL.
func FileKey(ref Reference) (string, bool) {
	kind, name, err := ParseReference(ref)
	if err != nil {
		return "", false
	}
	return string(kind) + "/" + name, true
}

func observeReport(metrics *observability.Metrics, cause string, report DeleteReport) {
	for range report.Deleted {
		metrics.ObserveMediaDeletion(cause, true)
	}
	for range report.Failed {
		metrics.ObserveMediaDeletion(cause, false)
	}
}

func uniqueRefs(refs []Reference) []Reference {
	seen := make(map[Reference]struct{}, len(refs))
	out := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(string(ref)) == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

const maxSlugLength = 64

var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// buildFilename returns slug-<unixmilli>-<8 hex><ext> for original.
func buildFilename(original string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if !validExt(ext) {
		ext = ""
	}
	stem := slugify(strings.TrimSuffix(base, filepath.Ext(base)))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s%s", stem, now.UnixMilli(), suffix, ext)
}

func slugify(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '.':
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
	}
	if slug == "" {
		return "file"
	}
	return slug
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
