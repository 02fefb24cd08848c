// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/sweeparr/sweeparr/internal/dbinterface"
	"github.com/sweeparr/sweeparr/internal/domain"
)

var ErrInstanceNotFound = errors.New("instance not found")

// InstanceKind identifies which flavor of media manager an instance is.
type InstanceKind string

const (
	InstanceKindSonarr InstanceKind = "sonarr"
	InstanceKindRadarr InstanceKind = "radarr"
)

// Instance is a registered Sonarr/Radarr-style media manager whose download
// queue the cleaner operates on.
type Instance struct {
	ID              int          `json:"id"`
	Name            string       `json:"name"`
	Host            string       `json:"host"`
	Kind            InstanceKind `json:"kind"`
	APIKeyEncrypted string       `json:"-"`
	Enabled         bool         `json:"enabled"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

func (i Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID        int          `json:"id"`
		Name      string       `json:"name"`
		Host      string       `json:"host"`
		Kind      InstanceKind `json:"kind"`
		APIKey    string       `json:"apiKey,omitempty"`
		Enabled   bool         `json:"enabled"`
		CreatedAt time.Time    `json:"createdAt"`
		UpdatedAt time.Time    `json:"updatedAt"`
	}{
		ID:        i.ID,
		Name:      i.Name,
		Host:      i.Host,
		Kind:      i.Kind,
		APIKey:    domain.RedactString(i.APIKeyEncrypted),
		Enabled:   i.Enabled,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	})
}

// InstanceStore manages persistence for registered instances. API keys are
// encrypted at rest with AES-GCM.
type InstanceStore struct {
	db            dbinterface.Querier
	encryptionKey []byte
}

func NewInstanceStore(db dbinterface.Querier, encryptionKey []byte) (*InstanceStore, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}

	return &InstanceStore{
		db:            db,
		encryptionKey: encryptionKey,
	}, nil
}

// encrypt encrypts a string using AES-GCM
func (s *InstanceStore) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a string encrypted with encrypt
func (s *InstanceStore) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("malformed ciphertext")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// validateAndNormalizeHost validates and normalizes an instance host URL
func validateAndNormalizeHost(rawHost string) (string, error) {
	rawHost = strings.TrimSpace(rawHost)

	if rawHost == "" {
		return "", errors.New("host cannot be empty")
	}

	if !strings.Contains(rawHost, "://") {
		rawHost = "http://" + rawHost
	}

	u, err := url.Parse(rawHost)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: must be http or https", u.Scheme)
	}

	if u.Host == "" {
		return "", errors.New("URL must include a host")
	}

	return u.String(), nil
}

func normalizeKind(kind InstanceKind) (InstanceKind, error) {
	switch InstanceKind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case InstanceKindSonarr:
		return InstanceKindSonarr, nil
	case InstanceKindRadarr:
		return InstanceKindRadarr, nil
	case "":
		return InstanceKindSonarr, nil
	default:
		return "", fmt.Errorf("unsupported instance kind %q", kind)
	}
}

func (s *InstanceStore) Create(ctx context.Context, name, rawHost string, kind InstanceKind, apiKey string) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}

	normalizedKind, err := normalizeKind(kind)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name cannot be empty")
	}

	encryptedKey, err := s.encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt API key: %w", err)
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO instances (name, host, kind, api_key_encrypted)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, strings.TrimSpace(name), normalizedHost, string(normalizedKind), encryptedKey).Scan(&id)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *InstanceStore) Get(ctx context.Context, id int) (*Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, host, kind, api_key_encrypted, enabled, created_at, updated_at
		FROM instances
		WHERE id = ?
	`, id)

	instance, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	return instance, nil
}

func (s *InstanceStore) List(ctx context.Context) ([]*Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, host, kind, api_key_encrypted, enabled, created_at, updated_at
		FROM instances
		ORDER BY name COLLATE NOCASE ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return instances, nil
}

// Update modifies an instance. Empty apiKey (or the redaction placeholder)
// leaves the stored key untouched.
func (s *InstanceStore) Update(ctx context.Context, id int, name, rawHost string, kind InstanceKind, apiKey string, enabled *bool) (*Instance, error) {
	normalizedHost, err := validateAndNormalizeHost(rawHost)
	if err != nil {
		return nil, err
	}

	normalizedKind, err := normalizeKind(kind)
	if err != nil {
		return nil, err
	}

	query := "UPDATE instances SET name = ?, host = ?, kind = ?, updated_at = CURRENT_TIMESTAMP"
	args := []any{strings.TrimSpace(name), normalizedHost, string(normalizedKind)}

	if apiKey != "" && !domain.IsRedactedString(apiKey) {
		encryptedKey, err := s.encrypt(apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt API key: %w", err)
		}
		query += ", api_key_encrypted = ?"
		args = append(args, encryptedKey)
	}

	if enabled != nil {
		query += ", enabled = ?"
		args = append(args, boolToSQLite(*enabled))
	}

	query += " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, ErrInstanceNotFound
	}

	return s.Get(ctx, id)
}

func (s *InstanceStore) SetEnabled(ctx context.Context, id int, enabled bool) (*Instance, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE instances SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToSQLite(enabled), id)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rows == 0 {
		return nil, ErrInstanceNotFound
	}

	return s.Get(ctx, id)
}

func (s *InstanceStore) Delete(ctx context.Context, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

// GetDecryptedAPIKey returns the decrypted API key for an instance
func (s *InstanceStore) GetDecryptedAPIKey(instance *Instance) (string, error) {
	return s.decrypt(instance.APIKeyEncrypted)
}

func scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*Instance, error) {
	var (
		id              int
		name            string
		host            string
		kind            string
		apiKeyEncrypted string
		enabledInt      int
		createdAt       time.Time
		updatedAt       time.Time
	)

	if err := scanner.Scan(&id, &name, &host, &kind, &apiKeyEncrypted, &enabledInt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	return &Instance{
		ID:              id,
		Name:            name,
		Host:            host,
		Kind:            InstanceKind(kind),
		APIKeyEncrypted: apiKeyEncrypted,
		Enabled:         enabledInt == 1,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func boolToSQLite(v bool) int {
	if v {
		return 1
	}
	return 0
}
