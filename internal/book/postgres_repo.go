package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const bookColumns = `isbn, title, author, published_date, status, created_at, updated_at`

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func scanBook(row pgx.Row) (Book, error) {
	var (
		b         Book
		status    string
		published *time.Time
	)
	if err := row.Scan(&b.ISBN, &b.Title, &b.Author, &published, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return Book{}, err
	}
	b.Status = Status(status)
	if published != nil {
		d := DateOf(*published)
		b.PublishedDate = &d
	}
	return b, nil
}

func publishedArg(b Book) any {
	if b.PublishedDate == nil {
		return nil
	}
	return b.PublishedDate.Time
}

func (r *PostgresRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE isbn = $1`

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	b, err := scanBook(r.db.QueryRow(timeoutCtx, query, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("find book %s: %w", isbn, err)
	}
	return b, nil
}

func (r *PostgresRepo) FindAll(ctx context.Context) ([]Book, error) {
	return r.list(ctx, `SELECT `+bookColumns+` FROM books ORDER BY created_at, isbn`)
}

func (r *PostgresRepo) FindByStatus(ctx context.Context, status Status) ([]Book, error) {
	return r.list(ctx, `SELECT `+bookColumns+` FROM books WHERE status = $1 ORDER BY created_at, isbn`, string(status))
}

func (r *PostgresRepo) list(ctx context.Context, query string, args ...any) ([]Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	books, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) {
		return scanBook(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan books: %w", err)
	}
	return books, nil
}

// Create inserts book. A duplicate ISBN yields ErrConflict.
func (r *PostgresRepo) Create(ctx context.Context, book Book) (Book, error) {
	query := `
		INSERT INTO books (isbn, title, author, published_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING ` + bookColumns

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	created, err := scanBook(r.db.QueryRow(timeoutCtx, query,
		book.ISBN, book.Title, book.Author, publishedArg(book), string(book.Status),
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Book{}, ErrConflict
		}
		return Book{}, fmt.Errorf("insert book %s: %w", book.ISBN, err)
	}
	return created, nil
}

// Save upserts book by ISBN. created_at of an existing row is kept.
func (r *PostgresRepo) Save(ctx context.Context, book Book) (Book, error) {
	query := `
		INSERT INTO books (isbn, title, author, published_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (isbn) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			published_date = EXCLUDED.published_date,
			status = EXCLUDED.status,
			updated_at = NOW()
		RETURNING ` + bookColumns

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	saved, err := scanBook(r.db.QueryRow(timeoutCtx, query,
		book.ISBN, book.Title, book.Author, publishedArg(book), string(book.Status),
	))
	if err != nil {
		return Book{}, fmt.Errorf("save book %s: %w", book.ISBN, err)
	}
	return saved, nil
}
