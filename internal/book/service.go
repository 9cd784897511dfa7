package book

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"librarycatalog/internal/platform/openlibrary"
)

// Enrichment results reported to the Recorder.
const (
	ResultSuccess       = "success"
	ResultInvalid       = "invalid"
	ResultNotFound      = "not_found"
	ResultUpstreamError = "upstream_error"
	ResultStorageError  = "storage_error"
)

// Service provides book-related business logic.
type Service struct {
	repo            Repository
	metadata        MetadataClient
	recorder        Recorder
	logger          *slog.Logger
	metadataTimeout time.Duration
	now             func() time.Time
}

type Option func(*Service)

// WithRecorder reports enrichment outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetadataTimeout bounds the metadata fetch. Zero leaves the fetch
// bounded only by the caller's context.
func WithMetadataTimeout(d time.Duration) Option {
	return func(s *Service) { s.metadataTimeout = d }
}

// WithClock replaces time.Now, used to decide whether a date lies in the past.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new book service.
func NewService(repo Repository, metadata MetadataClient, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		metadata: metadata,
		recorder: nopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAvailable returns every book currently in AVAILABLE status.
func (s *Service) ListAvailable(ctx context.Context) ([]Book, error) {
	return s.ListByStatus(ctx, StatusAvailable)
}

// ListByStatus returns the books in status, in storage order.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Book, error) {
	books, err := s.repo.FindByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list books by status %s: %w", status, err)
	}
	return books, nil
}

// ListAll returns every stored book.
func (s *Service) ListAll(ctx context.Context) ([]Book, error) {
	books, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetByISBN returns a book by its ISBN.
func (s *Service) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	isbn = NormalizeISBN(isbn)
	if isbn == "" {
		return Book{}, ErrNotFound
	}
	return s.repo.FindByISBN(ctx, isbn)
}

// Create validates req and stores it as a new book.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Book, error) {
	if err := req.Validate(); err != nil {
		return Book{}, err
	}

	created, err := s.repo.Create(ctx, req.toBook())
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return Book{}, err
		}
		return Book{}, fmt.Errorf("create book %s: %w", req.ISBN, err)
	}
	s.logger.InfoContext(ctx, "book created", "isbn", created.ISBN)
	return created, nil
}

// Enrich overwrites the stored title, author and published date of a book
// with the values the metadata source returns, then saves it.
//
// Nothing is written unless the fetch succeeded. Concurrent calls for the
// same ISBN are not serialized; the last save wins.
func (s *Service) Enrich(ctx context.Context, isbn string) (Book, error) {
	start := time.Now()
	result := ResultSuccess
	defer func() {
		s.recorder.RecordEnrichment(result, time.Since(start))
	}()

	isbn = NormalizeISBN(isbn)
	if isbn == "" {
		result = ResultInvalid
		return Book{}, &ValidationError{Fields: []FieldError{{Field: "isbn", Message: "isbn is required"}}}
	}

	current, err := s.repo.FindByISBN(ctx, isbn)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			result = ResultNotFound
			return Book{}, err
		}
		result = ResultStorageError
		return Book{}, fmt.Errorf("load book %s: %w", isbn, err)
	}

	details, err := s.fetchMetadata(ctx, isbn)
	if err != nil {
		result = ResultUpstreamError
		s.logger.WarnContext(ctx, "metadata fetch failed", "isbn", isbn, "error", err)
		return Book{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	merged, ok := mergeMetadata(current, details, s.now())
	if !ok {
		result = ResultUpstreamError
		s.logger.WarnContext(ctx, "metadata response had no usable fields", "isbn", isbn)
		return Book{}, fmt.Errorf("%w: no usable metadata for %s", ErrUpstreamUnavailable, isbn)
	}

	saved, err := s.repo.Save(ctx, merged)
	if err != nil {
		result = ResultStorageError
		return Book{}, fmt.Errorf("save enriched book %s: %w", isbn, err)
	}

	s.logger.InfoContext(ctx, "book enriched", "isbn", isbn, "duration_ms", time.Since(start).Milliseconds())
	return saved, nil
}

func (s *Service) fetchMetadata(ctx context.Context, isbn string) (*openlibrary.BookDetails, error) {
	if s.metadataTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.metadataTimeout)
		defer cancel()
	}

	details, err := s.metadata.GetBookByISBN(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, openlibrary.ErrNoData
	}
	return details, nil
}

// mergeMetadata overwrites the bibliographic fields of b with every value
// present in d. ISBN, status and timestamps are kept. A publish date that
// cannot be parsed or is not in the past is ignored. ok is false when d
// carries no usable field at all.
func mergeMetadata(b Book, d *openlibrary.BookDetails, now time.Time) (merged Book, ok bool) {
	merged = b

	if title := strings.TrimSpace(d.Title); title != "" {
		merged.Title = title
		ok = true
	}
	if author := d.AuthorName(); author != "" {
		merged.Author = author
		ok = true
	}
	if published, parsed := d.PublishedOn(); parsed {
		date := DateOf(published)
		if date.Before(DateOf(now.UTC()).Time) {
			merged.PublishedDate = &date
			ok = true
		}
	}
	return merged, ok
}
