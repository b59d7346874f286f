package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const lookupLen = 8

// Service issues and resolves API keys. The plaintext key exists only
// in the creation response; resolution compares the bcrypt hash of the
// presented key against rows sharing its lookup fragment.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Issue mints a new key for the account. The returned plaintext is
// shown to the caller once and not retrievable afterwards.
func (s *Service) Issue(ctx context.Context, accountID uuid.UUID, name string) (*Key, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	plaintext := KeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash key: %w", err)
	}

	key := &Key{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      name,
		Lookup:    plaintext[:len(KeyPrefix)+lookupLen],
		Hash:      string(hash),
		Active:    true,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, "", err
	}

	log.Info().
		Str("key_id", key.ID.String()).
		Str("account_id", accountID.String()).
		Msg("API key issued")

	return key, plaintext, nil
}

func (s *Service) List(ctx context.Context, accountID uuid.UUID) ([]Key, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

func (s *Service) Revoke(ctx context.Context, accountID, id uuid.UUID) error {
	return s.repo.Delete(ctx, accountID, id)
}

// SetActive suspends or resumes a key. An inactive key stops resolving
// immediately but keeps its hash, so reactivation restores the same key.
func (s *Service) SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (*Key, error) {
	key, err := s.repo.SetActive(ctx, accountID, id, active)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("key_id", id.String()).
		Str("account_id", accountID.String()).
		Bool("active", active).
		Msg("API key toggled")

	return key, nil
}

// ResolveKey authenticates a presented key and returns the owning
// account. Satisfies the auth middleware's resolver.
func (s *Service) ResolveKey(ctx context.Context, rawKey string) (uuid.UUID, error) {
	if !strings.HasPrefix(rawKey, KeyPrefix) || len(rawKey) < len(KeyPrefix)+lookupLen {
		return uuid.Nil, ErrInvalidKey
	}

	candidates, err := s.repo.FindByLookup(ctx, rawKey[:len(KeyPrefix)+lookupLen])
	if err != nil {
		return uuid.Nil, err
	}

	for i := range candidates {
		if !candidates[i].Active {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].Hash), []byte(rawKey)) == nil {
			if err := s.repo.TouchLastUsed(ctx, candidates[i].ID); err != nil {
				log.Warn().Err(err).Str("key_id", candidates[i].ID.String()).Msg("Failed to stamp key usage")
			}
			return candidates[i].AccountID, nil
		}
	}

	return uuid.Nil, ErrInvalidKey
}
