package book

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"librarycatalog/internal/platform/openlibrary"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type metadataClientMock struct {
	mock.Mock
}

func (m *metadataClientMock) GetBookByISBN(ctx context.Context, isbn string) (*openlibrary.BookDetails, error) {
	args := m.Called(ctx, isbn)
	details, _ := args.Get(0).(*openlibrary.BookDetails)
	return details, args.Error(1)
}

type recorderMock struct {
	mock.Mock
}

func (m *recorderMock) RecordEnrichment(result string, d time.Duration) {
	m.Called(result, d)
}

var fixedNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo Repository, metadata MetadataClient, opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewService(repo, metadata, append(base, opts...)...)
}

func storedBook() Book {
	created := time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)
	return Book{
		ISBN:      "9780134757599",
		Title:     "Old",
		Author:    "Old",
		Status:    StatusAvailable,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func effectiveJava() *openlibrary.BookDetails {
	return &openlibrary.BookDetails{
		Title:       "Effective Java",
		Authors:     []openlibrary.Author{{Name: "Joshua Bloch"}},
		PublishDate: "June 1, 1997",
	}
}

func TestService_Enrich(t *testing.T) {
	ctx := context.Background()

	t.Run("merges metadata and saves", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		recorder := &recorderMock{}
		svc := newTestService(repo, metadata, WithRecorder(recorder))

		current := storedBook()
		current.Status = StatusBorrowed
		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(current, nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").Return(effectiveJava(), nil)
		recorder.On("RecordEnrichment", ResultSuccess, mock.AnythingOfType("time.Duration")).Once()

		var saved Book
		repo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, b Book) (Book, error) {
			saved = b
			return b, nil
		})

		got, err := svc.Enrich(ctx, "978-0-13-475759-9")
		require.NoError(t, err)

		assert.Equal(t, "9780134757599", got.ISBN)
		assert.Equal(t, "Effective Java", got.Title)
		assert.Equal(t, "Joshua Bloch", got.Author)
		require.NotNil(t, got.PublishedDate)
		assert.Equal(t, "1997-06-01", got.PublishedDate.String())
		assert.Equal(t, StatusBorrowed, got.Status)
		assert.Equal(t, current.CreatedAt, got.CreatedAt)
		assert.Equal(t, got, saved)
		metadata.AssertExpectations(t)
		recorder.AssertExpectations(t)
	})

	t.Run("unknown isbn is not found and nothing is written", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		recorder := &recorderMock{}
		svc := newTestService(repo, metadata, WithRecorder(recorder))

		repo.EXPECT().FindByISBN(gomock.Any(), "0000000000").Return(Book{}, ErrNotFound)
		recorder.On("RecordEnrichment", ResultNotFound, mock.Anything).Once()

		_, err := svc.Enrich(ctx, "0000000000")
		assert.ErrorIs(t, err, ErrNotFound)
		metadata.AssertNotCalled(t, "GetBookByISBN", mock.Anything, mock.Anything)
		recorder.AssertExpectations(t)
	})

	t.Run("metadata failure leaves the record alone", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		recorder := &recorderMock{}
		svc := newTestService(repo, metadata, WithRecorder(recorder))

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		repo.EXPECT().Save(gomock.Any(), gomock.Any()).Times(0)
		upstream := &openlibrary.StatusError{StatusCode: 503}
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").Return(nil, upstream)
		recorder.On("RecordEnrichment", ResultUpstreamError, mock.Anything).Once()

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)

		var statusErr *openlibrary.StatusError
		assert.True(t, errors.As(err, &statusErr))
		recorder.AssertExpectations(t)
	})

	t.Run("no data upstream is unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		svc := newTestService(repo, metadata)

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").Return(nil, openlibrary.ErrNoData)

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, openlibrary.ErrNoData)
	})

	t.Run("nil details without error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		svc := newTestService(repo, metadata)

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").Return(nil, nil)

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("empty details are not written", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		svc := newTestService(repo, metadata)

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").
			Return(&openlibrary.BookDetails{Title: "  ", PublishDate: "someday"}, nil)

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	})

	t.Run("storage failure on load", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		recorder := &recorderMock{}
		svc := newTestService(repo, metadata, WithRecorder(recorder))

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(Book{}, context.DeadlineExceeded)
		recorder.On("RecordEnrichment", ResultStorageError, mock.Anything).Once()

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrUpstreamUnavailable)
		recorder.AssertExpectations(t)
	})

	t.Run("storage failure on save", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		svc := newTestService(repo, metadata)

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").Return(effectiveJava(), nil)
		repo.EXPECT().Save(gomock.Any(), gomock.Any()).Return(Book{}, errors.New("disk full"))

		_, err := svc.Enrich(ctx, "9780134757599")
		assert.EqualError(t, err, "save enriched book 9780134757599: disk full")
	})

	t.Run("blank isbn", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		svc := newTestService(NewMockRepository(ctrl), &metadataClientMock{})

		_, err := svc.Enrich(ctx, "  ")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("hanging upstream hits the metadata timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		metadata := &metadataClientMock{}
		svc := newTestService(repo, metadata, WithMetadataTimeout(20*time.Millisecond))

		repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
		metadata.On("GetBookByISBN", mock.Anything, "9780134757599").
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)

		start := time.Now()
		_, err := svc.Enrich(ctx, "9780134757599")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestMergeMetadata(t *testing.T) {
	published := NewDate(1990, time.January, 1)
	current := storedBook()
	current.PublishedDate = &published

	t.Run("future date is ignored", func(t *testing.T) {
		merged, ok := mergeMetadata(current, &openlibrary.BookDetails{
			Title:       "New",
			PublishDate: "2030",
		}, fixedNow)
		require.True(t, ok)
		assert.Equal(t, "New", merged.Title)
		assert.Equal(t, "Old", merged.Author)
		assert.Equal(t, &published, merged.PublishedDate)
	})

	t.Run("unparseable date is ignored", func(t *testing.T) {
		merged, ok := mergeMetadata(current, &openlibrary.BookDetails{
			Authors:     []openlibrary.Author{{Name: " "}, {Name: "Second Author"}},
			PublishDate: "spring of the year",
		}, fixedNow)
		require.True(t, ok)
		assert.Equal(t, "Old", merged.Title)
		assert.Equal(t, "Second Author", merged.Author)
		assert.Equal(t, &published, merged.PublishedDate)
	})

	t.Run("date only", func(t *testing.T) {
		merged, ok := mergeMetadata(current, &openlibrary.BookDetails{PublishDate: "2001"}, fixedNow)
		require.True(t, ok)
		require.NotNil(t, merged.PublishedDate)
		assert.Equal(t, "2001-01-01", merged.PublishedDate.String())
	})

	t.Run("nothing usable", func(t *testing.T) {
		merged, ok := mergeMetadata(current, &openlibrary.BookDetails{}, fixedNow)
		assert.False(t, ok)
		assert.Equal(t, current, merged)
	})
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stores normalized book", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		svc := newTestService(repo, &metadataClientMock{})

		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, b Book) (Book, error) {
			assert.Equal(t, "9780134757599", b.ISBN)
			assert.Equal(t, StatusAvailable, b.Status)
			return b, nil
		})

		req := validRequest()
		req.ISBN = "978-0-13-475759-9"
		got, err := svc.Create(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "Effective Java", got.Title)
	})

	t.Run("invalid request never reaches storage", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		svc := newTestService(repo, &metadataClientMock{})

		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

		req := validRequest()
		req.Title = ""
		_, err := svc.Create(ctx, req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("duplicate", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		repo := NewMockRepository(ctrl)
		svc := newTestService(repo, &metadataClientMock{})

		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(Book{}, ErrConflict)

		_, err := svc.Create(ctx, validRequest())
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestService_GetByISBN(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := NewMockRepository(ctrl)
	svc := newTestService(repo, &metadataClientMock{})

	repo.EXPECT().FindByISBN(gomock.Any(), "9780134757599").Return(storedBook(), nil)
	got, err := svc.GetByISBN(context.Background(), "978-0134757599")
	require.NoError(t, err)
	assert.Equal(t, "Old", got.Title)

	_, err = svc.GetByISBN(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Lists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	repo := NewMockRepository(ctrl)
	svc := newTestService(repo, &metadataClientMock{})
	ctx := context.Background()

	repo.EXPECT().FindByStatus(gomock.Any(), StatusAvailable).Return([]Book{storedBook()}, nil)
	books, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)

	repo.EXPECT().FindAll(gomock.Any()).Return(nil, errors.New("boom"))
	_, err = svc.ListAll(ctx)
	assert.EqualError(t, err, "list books: boom")
}
