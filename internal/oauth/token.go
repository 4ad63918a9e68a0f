package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/gsarma/mailqueue/internal/crypto"
)

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("no stored oauth token; run gmail-auth first")

// TokenFile stores a single OAuth token on disk, sealed with an Encryptor.
type TokenFile struct {
	path string
	enc  *crypto.Encryptor
}

func NewTokenFile(path string, enc *crypto.Encryptor) *TokenFile {
	return &TokenFile{path: path, enc: enc}
}

// Load reads and decrypts the stored token.
func (f *TokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	plain, err := f.enc.Open(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &tok, nil
}

// Save encrypts tok and replaces the stored token.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	sealed, err := f.enc.Seal(plain)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// persistingSource writes refreshed tokens back to the TokenFile so the next
// process start does not need to refresh again.
type persistingSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	file *TokenFile
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		// A failed write only costs an extra refresh next time.
		if err := s.file.Save(tok); err == nil {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

// NewGmailClient returns an HTTP client authorized with the stored token.
// Expired tokens are refreshed transparently and persisted.
func NewGmailClient(ctx context.Context, g *GoogleProvider, file *TokenFile) (*http.Client, error) {
	tok, err := file.Load()
	if err != nil {
		return nil, err
	}
	src := &persistingSource{
		src:  oauth2.ReuseTokenSource(tok, g.TokenSource(ctx, tok)),
		file: file,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, src), nil
}
