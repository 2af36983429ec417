package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"postboard/pkg/models"
	"postboard/pkg/postapi"
)

//go:embed schema.sql
var schema string

// Store serves posts from a postgres table.
type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, conStr string) (*Store, error) {
	db, err := pgxpool.Connect(ctx, conStr)
	if err != nil {
		return nil, err
	}
	s := Store{
		db: db,
	}

	return &s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	s.db.Close()
}

// Migrate creates the posts table and its index if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// AddPosts inserts or updates a batch of posts within a single transaction.
// Posts without an ID get a UUIDv5 derived from their title and author.
func (s *Store) AddPosts(ctx context.Context, posts []models.Post) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := new(pgx.Batch)
	for _, post := range posts {
		if post.ID == "" {
			post.ID = uuid.NewV5(uuid.NamespaceURL, post.Author+"/"+post.Title).String()
		}
		batch.Queue(`
			INSERT INTO posts (id, title, description, author, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id)
			DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				author = EXCLUDED.author,
				image_url = EXCLUDED.image_url,
				updated_at = EXCLUDED.updated_at
		`,
			post.ID,
			post.Title,
			post.Description,
			post.Author,
			post.ImageURL,
			timeOrNow(post.CreatedAt),
			timeOrNow(post.UpdatedAt),
		)
	}

	res := tx.SendBatch(ctx, batch)
	err = res.Close()
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetAll returns one page of posts ordered by update time, newest first.
// It understands the same _page, _limit, title_like and author parameters as
// the in-memory source.
func (s *Store) GetAll(ctx context.Context, query url.Values) (*models.PostsResponse, error) {
	pq := postapi.ParseQuery(query)
	where, args := whereClause(pq)

	var totalRows int
	err := s.db.QueryRow(ctx, `SELECT COUNT(id) FROM posts`+where, args...).Scan(&totalRows)
	if err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}

	n := len(args)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT id, title, description, author, image_url, created_at, updated_at
		FROM posts%s
		ORDER BY updated_at DESC, id
		LIMIT $%d OFFSET $%d
	`, where, n+1, n+2),
		append(args, pq.Limit, pq.Offset())...,
	)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var (
			p                    models.Post
			createdAt, updatedAt time.Time
		)
		err := rows.Scan(
			&p.ID,
			&p.Title,
			&p.Description,
			&p.Author,
			&p.ImageURL,
			&createdAt,
			&updatedAt)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = models.NewTimestamp(createdAt.UTC())
		p.UpdatedAt = models.NewTimestamp(updatedAt.UTC())
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &models.PostsResponse{
		Data: posts,
		Pagination: models.Pagination{
			Page:      pq.Page,
			Limit:     pq.Limit,
			TotalRows: totalRows,
		},
	}, nil
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func whereClause(pq postapi.PageQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if pq.TitleLike != "" {
		args = append(args, "%"+likeEscaper.Replace(pq.TitleLike)+"%")
		conds = append(conds, fmt.Sprintf(`title ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if pq.Author != "" {
		args = append(args, pq.Author)
		conds = append(conds, fmt.Sprintf("author = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func timeOrNow(ts models.Timestamp) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.Time
}
