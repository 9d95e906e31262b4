package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/parc-api/internal/models"
	"github.com/noah-isme/parc-api/pkg/mailer"
)

const minSecretBytes = 8

type credentialStore interface {
	UpdateSecret(ctx context.Context, exec sqlx.ExtContext, id, passwordHash string) error
}

// CredentialNotice renders the email that carries a freshly issued secret.
type CredentialNotice func(secret string) mailer.Message

// CredentialService generates login secrets and queues them for delivery.
type CredentialService struct {
	store       credentialStore
	secretBytes int
	cost        int
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewCredentialService constructs the issuer. secretBytes below 8 is raised to 8.
func NewCredentialService(store credentialStore, secretBytes int, metrics *MetricsService, logger *zap.Logger) *CredentialService {
	if secretBytes < minSecretBytes {
		secretBytes = minSecretBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{store: store, secretBytes: secretBytes, cost: bcrypt.DefaultCost, metrics: metrics, logger: logger}
}

// Assign sets a new hash on an account that is not persisted yet and queues the notice.
func (s *CredentialService) Assign(account *models.Account, notice CredentialNotice, outbox *Outbox) error {
	secret, hash, err := s.generate()
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	s.record(account, notice, secret, outbox)
	return nil
}

// Issue replaces the stored hash of an existing account inside exec and queues the notice.
func (s *CredentialService) Issue(ctx context.Context, exec sqlx.ExtContext, account *models.Account, notice CredentialNotice, outbox *Outbox) error {
	secret, hash, err := s.generate()
	if err != nil {
		return err
	}
	if err := s.store.UpdateSecret(ctx, exec, account.ID, hash); err != nil {
		return err
	}
	account.PasswordHash = hash
	s.record(account, notice, secret, outbox)
	return nil
}

func (s *CredentialService) record(account *models.Account, notice CredentialNotice, secret string, outbox *Outbox) {
	if notice != nil && outbox != nil {
		outbox.Add(notice(secret))
	}
	s.metrics.CredentialIssued(account.Role)
	s.logger.Info("credentials issued", zap.String("account_id", account.ID), zap.String("role", string(account.Role)))
}

func (s *CredentialService) generate() (string, string, error) {
	buf := make([]byte, s.secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash secret: %w", err)
	}
	return secret, string(hash), nil
}
