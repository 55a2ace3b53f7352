package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/noah-isme/calendar2youtube/pkg/storage"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("oauth token not found")

// TokenStore persists the user's OAuth token between runs.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON in a single owner-only file.
type FileTokenStore struct {
	files    *storage.LocalStorage
	filename string
}

// NewFileTokenStore stores the token at filename, relative to files' base directory.
func NewFileTokenStore(files *storage.LocalStorage, filename string) *FileTokenStore {
	if filename == "" {
		filename = "token.json"
	}
	return &FileTokenStore{files: files, filename: filename}
}

// Load reads the stored token.
func (s *FileTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	data, err := s.files.Read(s.filename)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	return DecodeToken(data)
}

// Save writes the token with 0600 permissions.
func (s *FileTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	data, err := EncodeToken(token)
	if err != nil {
		return err
	}
	if _, err := s.files.Save(s.filename, data, 0o600); err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}

// EncodeToken renders a token as JSON.
func EncodeToken(token *oauth2.Token) ([]byte, error) {
	if token == nil {
		return nil, errors.New("encode oauth token: nil token")
	}
	data, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("encode oauth token: %w", err)
	}
	return data, nil
}

// DecodeToken parses a JSON token.
func DecodeToken(data []byte) (*oauth2.Token, error) {
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, ErrNoToken
	}
	return token, nil
}

// persistingTokenSource writes refreshed tokens back to the store.
type persistingTokenSource struct {
	ctx    context.Context
	base   oauth2.TokenSource
	store  TokenStore
	onSave func(error)

	mu   sync.Mutex
	last string
}

// PersistingTokenSource wraps base so every newly minted access token is saved.
// onSave, when set, observes the result of each save.
func PersistingTokenSource(ctx context.Context, base oauth2.TokenSource, store TokenStore, initial *oauth2.Token, onSave func(error)) oauth2.TokenSource {
	last := ""
	if initial != nil {
		last = initial.AccessToken
	}
	return &persistingTokenSource{ctx: ctx, base: base, store: store, onSave: onSave, last: last}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken == s.last {
		return token, nil
	}
	s.last = token.AccessToken
	saveErr := s.store.Save(s.ctx, token)
	if s.onSave != nil {
		s.onSave(saveErr)
	}
	return token, nil
}
