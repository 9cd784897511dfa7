package book

import (
	"context"
	"time"

	"librarycatalog/internal/platform/openlibrary"
)

//go:generate mockgen -destination=mock_repository.go -package=book librarycatalog/internal/book Repository

// Repository defines the contract for book data storage.
type Repository interface {
	// FindByISBN returns ErrNotFound when the ISBN is unknown.
	FindByISBN(ctx context.Context, isbn string) (Book, error)
	FindAll(ctx context.Context) ([]Book, error)
	FindByStatus(ctx context.Context, status Status) ([]Book, error)
	// Create inserts a new book and returns ErrConflict if the ISBN exists.
	Create(ctx context.Context, book Book) (Book, error)
	// Save inserts or fully replaces the book stored under book.ISBN.
	Save(ctx context.Context, book Book) (Book, error)
}

// MetadataClient fetches third party bibliographic data for an ISBN.
type MetadataClient interface {
	GetBookByISBN(ctx context.Context, isbn string) (*openlibrary.BookDetails, error)
}

// Recorder observes enrichment outcomes.
type Recorder interface {
	RecordEnrichment(result string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordEnrichment(string, time.Duration) {}
