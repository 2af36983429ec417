package memdb

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"sync"

	"github.com/gofrs/uuid"

	"postboard/pkg/models"
	"postboard/pkg/postapi"
)

// Store is an in-memory posts source answering the same paged queries as
// the remote posts API.
type Store struct {
	mu    sync.Mutex
	posts map[string]models.Post
}

func New() *Store {
	db := Store{
		posts: make(map[string]models.Post),
	}

	return &db
}

// AddPost stores post and returns its ID. Posts without an ID get a UUIDv5
// derived from their title and author.
func (db *Store) AddPost(ctx context.Context, post models.Post) (id string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	post = withID(post)
	db.posts[post.ID] = post

	return post.ID, nil
}

func (db *Store) AddPosts(ctx context.Context, posts []models.Post) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, post := range posts {
		post = withID(post)
		db.posts[post.ID] = post
	}

	return
}

func (db *Store) GetAll(ctx context.Context, query url.Values) (*models.PostsResponse, error) {
	db.mu.Lock()
	allPosts := make([]models.Post, 0, len(db.posts))
	for _, v := range db.posts {
		allPosts = append(allPosts, v)
	}
	db.mu.Unlock()

	return postapi.Paginate(allPosts, query), nil
}

func (db *Store) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return len(db.posts)
}

func withID(post models.Post) models.Post {
	if post.ID == "" {
		post.ID = uuid.NewV5(uuid.NamespaceURL, post.Author+"/"+post.Title).String()
	}
	return post
}

// LoadPosts reads a JSON array of posts from path.
func LoadPosts(path string) ([]models.Post, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	if err := json.Unmarshal(b, &posts); err != nil {
		return nil, err
	}

	return posts, nil
}
