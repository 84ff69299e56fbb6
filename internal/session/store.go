package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"

	svcErr "github.com/cafezinho/discovery/internal/errors"
	"github.com/cafezinho/discovery/internal/models"
	"github.com/cafezinho/discovery/internal/repository"
)

const (
	appNamespace  = "app"
	keyCurrent    = "current_user"
	keyToken      = "token"
	keyFilters    = "filters"
	nonceSize     = 24
	sessionPrefix = "session:"
)

var errSealedToken = errors.New("sealed token is corrupt")

// Store persists sessions and last used filters. Tokens are sealed with
// secretbox under a key derived from the configured secret.
type Store struct {
	prefs *repository.PreferenceRepository
	key   [32]byte
}

// NewStore returns a Store over prefs. An empty secret is refused so tokens
// are never kept in clear.
func NewStore(prefs *repository.PreferenceRepository, secret string) (*Store, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	return &Store{
		prefs: prefs,
		key:   sha256.Sum256([]byte(secret)),
	}, nil
}

// Save stores sc and marks it as the current session.
func (s *Store) Save(ctx context.Context, sc Context) error {
	if !sc.Valid() {
		return errors.New("session user id is empty")
	}
	sealed, err := s.seal(sc.Token)
	if err != nil {
		return err
	}
	if err := s.prefs.Set(ctx, namespace(sc.UserID), keyToken, sealed); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.prefs.Set(ctx, appNamespace, keyCurrent, sc.UserID); err != nil {
		return fmt.Errorf("save current session: %w", err)
	}
	return nil
}

// Load returns errors.ErrSessionNotFound when userID never signed in here.
func (s *Store) Load(ctx context.Context, userID string) (Context, error) {
	rec, err := s.prefs.List(ctx, namespace(userID))
	if err != nil {
		return Context{}, fmt.Errorf("load session: %w", err)
	}
	sealed, ok := rec[keyToken]
	if !ok {
		return Context{}, svcErr.ErrSessionNotFound
	}

	token, err := s.open(sealed)
	if err != nil {
		return Context{}, fmt.Errorf("load session: %w", err)
	}
	return Context{UserID: userID, Token: token}, nil
}

// Current returns the most recently saved session.
func (s *Store) Current(ctx context.Context) (Context, error) {
	userID, err := s.prefs.Get(ctx, appNamespace, keyCurrent)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, svcErr.ErrSessionNotFound
	} else if err != nil {
		return Context{}, fmt.Errorf("load current session: %w", err)
	}
	return s.Load(ctx, userID)
}

// Delete forgets userID and everything stored for it.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.prefs.Clear(ctx, namespace(userID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	current, err := s.prefs.Get(ctx, appNamespace, keyCurrent)
	if err == nil && current == userID {
		return s.prefs.Delete(ctx, appNamespace, keyCurrent)
	}
	return nil
}

type filtersRecord struct {
	MinAge        int      `json:"min_age"`
	MaxAge        int      `json:"max_age"`
	MaxDistanceKm int      `json:"max_distance"`
	Gender        string   `json:"gender"`
	OnlineOnly    bool     `json:"online_only"`
	VerifiedOnly  bool     `json:"verified_only"`
	Interests     []string `json:"interests,omitempty"`
}

// SaveFilters stores the last filters applied by userID.
func (s *Store) SaveFilters(ctx context.Context, userID string, f models.SwipeFilters) error {
	raw, err := json.Marshal(filtersRecord(f))
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}
	return s.prefs.Set(ctx, namespace(userID), keyFilters, string(raw))
}

// LoadFilters returns ok=false when nothing was saved yet.
func (s *Store) LoadFilters(ctx context.Context, userID string) (models.SwipeFilters, bool, error) {
	entries, err := s.prefs.List(ctx, namespace(userID))
	if err != nil {
		return models.SwipeFilters{}, false, err
	}
	raw, ok := entries[keyFilters]
	if !ok {
		return models.SwipeFilters{}, false, nil
	}

	var rec filtersRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return models.SwipeFilters{}, false, fmt.Errorf("unmarshal filters: %w", err)
	}
	return models.SwipeFilters(rec), true, nil
}

func (s *Store) seal(token string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize {
		return "", errSealedToken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errSealedToken
	}
	return string(plain), nil
}

func namespace(userID string) string {
	return sessionPrefix + userID
}
