package oauth

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/noah-isme/calendar2youtube/pkg/storage"
)

func newFileStore(t *testing.T) *FileTokenStore {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewFileTokenStore(files, "token.json")
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	store := newFileStore(t)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	token := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, store.Save(context.Background(), token))

	info, err := os.Stat(store.files.Path("token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "at", loaded.AccessToken)
	assert.Equal(t, "rt", loaded.RefreshToken)
	assert.True(t, loaded.Expiry.Equal(token.Expiry))
}

func TestDecodeTokenRejectsEmpty(t *testing.T) {
	_, err := DecodeToken([]byte(`{}`))
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = DecodeToken([]byte(`not json`))
	assert.Error(t, err)
}

type sequenceSource struct {
	tokens []*oauth2.Token
	i      int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	if s.i >= len(s.tokens) {
		return nil, errors.New("exhausted")
	}
	t := s.tokens[s.i]
	s.i++
	return t, nil
}

type countingStore struct {
	saved []*oauth2.Token
}

func (s *countingStore) Load(ctx context.Context) (*oauth2.Token, error) { return nil, ErrNoToken }
func (s *countingStore) Save(ctx context.Context, token *oauth2.Token) error {
	s.saved = append(s.saved, token)
	return nil
}

func TestPersistingTokenSourceSavesOnlyNewTokens(t *testing.T) {
	initial := &oauth2.Token{AccessToken: "a"}
	base := &sequenceSource{tokens: []*oauth2.Token{initial, initial, {AccessToken: "b"}, {AccessToken: "b"}}}
	store := &countingStore{}
	var saves int
	source := PersistingTokenSource(context.Background(), base, store, initial, func(err error) {
		assert.NoError(t, err)
		saves++
	})

	for i := 0; i < 4; i++ {
		_, err := source.Token()
		require.NoError(t, err)
	}
	require.Len(t, store.saved, 1)
	assert.Equal(t, "b", store.saved[0].AccessToken)
	assert.Equal(t, 1, saves)

	_, err := source.Token()
	assert.Error(t, err)
}

func TestExtractCode(t *testing.T) {
	code, err := extractCode("  4/abc  ", "s1")
	require.NoError(t, err)
	assert.Equal(t, "4/abc", code)

	code, err = extractCode("http://localhost/?state=s1&code=4%2Fxyz&scope=a", "s1")
	require.NoError(t, err)
	assert.Equal(t, "4/xyz", code)

	_, err = extractCode("http://localhost/?state=other&code=1", "s1")
	assert.Error(t, err)

	_, err = extractCode("", "s1")
	assert.Error(t, err)
}

func TestConsentExchangesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	}
	out := &bytes.Buffer{}
	token, err := Consent(context.Background(), cfg, strings.NewReader("the-code\n"), out)
	require.NoError(t, err)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.Contains(t, out.String(), srv.URL+"/auth?")
	assert.Contains(t, out.String(), "access_type=offline")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"installed":{"client_id":"cid","client_secret":"cs","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`), 0o600))

	cfg, err := LoadConfig(path, "scope-a")
	require.NoError(t, err)
	assert.Equal(t, "cid", cfg.ClientID)
	assert.Equal(t, []string{"scope-a"}, cfg.Scopes)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
