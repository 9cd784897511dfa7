package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

const (
	dialectSQLite = "sqlite3"
	tableBooks    = "books"

	colISBN          = "isbn"
	colTitle         = "title"
	colAuthor        = "author"
	colPublishedDate = "published_date"
	colStatus        = "status"
	colCreatedAt     = "created_at"
	colUpdatedAt     = "updated_at"
)

// Fixed width so that timestamps sort lexically in ORDER BY.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepo stores books in SQLite. Timestamps and dates are kept as text.
type SQLiteRepo struct {
	db      *sqlx.DB
	builder *goqu.DialectWrapper
	timeout time.Duration
	now     func() time.Time
}

func NewSQLiteRepo(db *sqlx.DB, timeout time.Duration) *SQLiteRepo {
	builder := goqu.Dialect(dialectSQLite)
	return &SQLiteRepo{db: db, builder: &builder, timeout: timeout, now: time.Now}
}

type bookRow struct {
	ISBN          string         `db:"isbn"`
	Title         string         `db:"title"`
	Author        string         `db:"author"`
	PublishedDate sql.NullString `db:"published_date"`
	Status        string         `db:"status"`
	CreatedAt     string         `db:"created_at"`
	UpdatedAt     string         `db:"updated_at"`
}

func (row bookRow) toBook() (Book, error) {
	b := Book{
		ISBN:   row.ISBN,
		Title:  row.Title,
		Author: row.Author,
		Status: Status(row.Status),
	}
	if row.PublishedDate.Valid && row.PublishedDate.String != "" {
		d, err := ParseDate(row.PublishedDate.String)
		if err != nil {
			return Book{}, fmt.Errorf("published_date of %s: %w", row.ISBN, err)
		}
		b.PublishedDate = &d
	}
	var err error
	if b.CreatedAt, err = time.Parse(sqliteTimeLayout, row.CreatedAt); err != nil {
		return Book{}, fmt.Errorf("created_at of %s: %w", row.ISBN, err)
	}
	if b.UpdatedAt, err = time.Parse(sqliteTimeLayout, row.UpdatedAt); err != nil {
		return Book{}, fmt.Errorf("updated_at of %s: %w", row.ISBN, err)
	}
	return b, nil
}

func (r *SQLiteRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *SQLiteRepo) selectBooks() *goqu.SelectDataset {
	return r.builder.
		From(tableBooks).
		Select(colISBN, colTitle, colAuthor, colPublishedDate, colStatus, colCreatedAt, colUpdatedAt).
		Prepared(true)
}

func (r *SQLiteRepo) FindByISBN(ctx context.Context, isbn string) (Book, error) {
	query, args, err := r.selectBooks().Where(goqu.Ex{colISBN: isbn}).ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("build find query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var row bookRow
	if err := r.db.GetContext(timeoutCtx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, fmt.Errorf("find book %s: %w", isbn, err)
	}
	return row.toBook()
}

func (r *SQLiteRepo) FindAll(ctx context.Context) ([]Book, error) {
	return r.list(ctx, r.selectBooks())
}

func (r *SQLiteRepo) FindByStatus(ctx context.Context, status Status) ([]Book, error) {
	return r.list(ctx, r.selectBooks().Where(goqu.Ex{colStatus: string(status)}))
}

func (r *SQLiteRepo) list(ctx context.Context, ds *goqu.SelectDataset) ([]Book, error) {
	query, args, err := ds.Order(goqu.I(colCreatedAt).Asc(), goqu.I(colISBN).Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var rows []bookRow
	if err := r.db.SelectContext(timeoutCtx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}

	books := make([]Book, 0, len(rows))
	for _, row := range rows {
		b, err := row.toBook()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, nil
}

func (r *SQLiteRepo) record(b Book, now time.Time) goqu.Record {
	var published any
	if b.PublishedDate != nil {
		published = b.PublishedDate.String()
	}
	ts := now.UTC().Format(sqliteTimeLayout)
	return goqu.Record{
		colISBN:          b.ISBN,
		colTitle:         b.Title,
		colAuthor:        b.Author,
		colPublishedDate: published,
		colStatus:        string(b.Status),
		colCreatedAt:     ts,
		colUpdatedAt:     ts,
	}
}

// Create inserts book. A duplicate ISBN yields ErrConflict.
func (r *SQLiteRepo) Create(ctx context.Context, book Book) (Book, error) {
	query, args, err := r.builder.
		Insert(tableBooks).
		Rows(r.record(book, r.now())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("build insert query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.ExecContext(timeoutCtx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return Book{}, ErrConflict
		}
		return Book{}, fmt.Errorf("insert book %s: %w", book.ISBN, err)
	}
	return r.FindByISBN(ctx, book.ISBN)
}

// Save upserts book by ISBN. created_at of an existing row is kept.
func (r *SQLiteRepo) Save(ctx context.Context, book Book) (Book, error) {
	now := r.now()
	query, args, err := r.builder.
		Insert(tableBooks).
		Rows(r.record(book, now)).
		OnConflict(goqu.DoUpdate(colISBN, goqu.Record{
			colTitle:         goqu.L("excluded." + colTitle),
			colAuthor:        goqu.L("excluded." + colAuthor),
			colPublishedDate: goqu.L("excluded." + colPublishedDate),
			colStatus:        goqu.L("excluded." + colStatus),
			colUpdatedAt:     now.UTC().Format(sqliteTimeLayout),
		})).
		Prepared(true).
		ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("build upsert query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.db.ExecContext(timeoutCtx, query, args...); err != nil {
		return Book{}, fmt.Errorf("save book %s: %w", book.ISBN, err)
	}
	return r.FindByISBN(ctx, book.ISBN)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlitelib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
