// Package store persists wallet state in SQLite: encrypted account keys,
// DID documents, claimed names and issued credentials.
package store

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/pilacorp/go-w3n-wallet/store/migrations"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when inserting a duplicate record.
	ErrAlreadyExists = errors.New("record already exists")
)

// Account is a stored account key, without its secret.
type Account struct {
	Address   string
	Label     string
	KeyID     string
	CreatedAt time.Time
}

// DID is a stored DID document.
type DID struct {
	URI       string
	Role      string
	Document  []byte
	UpdatedAt time.Time
}

// Name is a claimed Web3 Name.
type Name struct {
	Name      string
	DID       string
	ClaimedAt time.Time
}

// Credential is a stored credential.
type Credential struct {
	ID        string
	Issuer    string
	Holder    string
	CTypeHash string
	Data      []byte
	CreatedAt time.Time
}

// Store persists wallet state in SQLite.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens a SQLite wallet store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// SaveAccount encrypts key with passphrase and stores it under a new key ID.
func (s *Store) SaveAccount(ctx context.Context, label string, key *ecdsa.PrivateKey, passphrase string) (Account, error) {
	if key == nil {
		return Account{}, fmt.Errorf("private key is required")
	}
	if passphrase == "" {
		return Account{}, fmt.Errorf("passphrase is required")
	}

	k := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key,
	}
	encrypted, err := keystore.EncryptKey(k, passphrase, keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		return Account{}, fmt.Errorf("encrypt key: %w", err)
	}

	acct := Account{
		Address:   strings.ToLower(k.Address.Hex()),
		Label:     strings.TrimSpace(label),
		KeyID:     k.Id.String(),
		CreatedAt: fromMillis(toMillis(s.clock())),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (address, label, key_id, keystore_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		acct.Address, acct.Label, acct.KeyID, string(encrypted), toMillis(acct.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, fmt.Errorf("account %s: %w", acct.Address, ErrAlreadyExists)
		}
		return Account{}, fmt.Errorf("save account: %w", err)
	}

	return acct, nil
}

// LoadAccount decrypts the stored key of address.
func (s *Store) LoadAccount(ctx context.Context, address, passphrase string) (*ecdsa.PrivateKey, error) {
	var encrypted string
	err := s.db.QueryRowContext(ctx,
		`SELECT keystore_json FROM accounts WHERE address = ?`, strings.ToLower(strings.TrimSpace(address)),
	).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	k, err := keystore.DecryptKey([]byte(encrypted), passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}

	return k.PrivateKey, nil
}

// ListAccounts returns all stored accounts ordered by creation.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, label, key_id, created_at FROM accounts ORDER BY created_at, address`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		var created int64
		if err := rows.Scan(&a.Address, &a.Label, &a.KeyID, &created); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}

	return out, rows.Err()
}

// SaveDID inserts or replaces a DID document.
func (s *Store) SaveDID(ctx context.Context, d DID) error {
	if strings.TrimSpace(d.URI) == "" {
		return fmt.Errorf("DID uri is required")
	}
	if len(d.Document) == 0 {
		return fmt.Errorf("DID document is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dids (uri, role, document_json, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(uri) DO UPDATE SET role = excluded.role, document_json = excluded.document_json, updated_at = excluded.updated_at`,
		d.URI, d.Role, string(d.Document), toMillis(s.clock()),
	)
	if err != nil {
		return fmt.Errorf("save DID: %w", err)
	}

	return nil
}

// GetDID returns a stored DID document.
func (s *Store) GetDID(ctx context.Context, uri string) (DID, error) {
	var d DID
	var doc string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT uri, role, document_json, updated_at FROM dids WHERE uri = ?`, uri,
	).Scan(&d.URI, &d.Role, &doc, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return DID{}, fmt.Errorf("DID %s: %w", uri, ErrNotFound)
	}
	if err != nil {
		return DID{}, fmt.Errorf("get DID: %w", err)
	}

	d.Document = []byte(doc)
	d.UpdatedAt = fromMillis(updated)

	return d, nil
}

// SaveName records a claimed name. The DID must be stored first.
func (s *Store) SaveName(ctx context.Context, n Name) error {
	if strings.TrimSpace(n.Name) == "" || strings.TrimSpace(n.DID) == "" {
		return fmt.Errorf("name and DID are required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO names (name, did_uri, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET did_uri = excluded.did_uri, claimed_at = excluded.claimed_at`,
		n.Name, n.DID, toMillis(s.clock()),
	)
	if err != nil {
		return fmt.Errorf("save name: %w", err)
	}

	return nil
}

// DeleteName removes a released name.
func (s *Store) DeleteName(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM names WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete name: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete name: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("name %s: %w", name, ErrNotFound)
	}

	return nil
}

// ListNames returns all claimed names ordered by name.
func (s *Store) ListNames(ctx context.Context) ([]Name, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, did_uri, claimed_at FROM names ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()

	var out []Name
	for rows.Next() {
		var n Name
		var claimed int64
		if err := rows.Scan(&n.Name, &n.DID, &claimed); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		n.ClaimedAt = fromMillis(claimed)
		out = append(out, n)
	}

	return out, rows.Err()
}

// SaveCredential stores a credential.
func (s *Store) SaveCredential(ctx context.Context, c Credential) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if len(c.Data) == 0 {
		return fmt.Errorf("credential data is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, issuer, holder, ctype_hash, credential_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Issuer, c.Holder, c.CTypeHash, string(c.Data), toMillis(s.clock()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("credential %s: %w", c.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("save credential: %w", err)
	}

	return nil
}

// GetCredential returns a stored credential.
func (s *Store) GetCredential(ctx context.Context, id string) (Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, issuer, holder, ctype_hash, credential_json, created_at FROM credentials WHERE id = ?`, id)

	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, fmt.Errorf("credential %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}

	return c, nil
}

// ListCredentials returns stored credentials, optionally only those held by
// holder.
func (s *Store) ListCredentials(ctx context.Context, holder string) ([]Credential, error) {
	query := `SELECT id, issuer, holder, ctype_hash, credential_json, created_at FROM credentials`
	var args []any
	if holder != "" {
		query += ` WHERE holder = ?`
		args = append(args, holder)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (Credential, error) {
	var c Credential
	var data string
	var created int64
	if err := row.Scan(&c.ID, &c.Issuer, &c.Holder, &c.CTypeHash, &data, &created); err != nil {
		return Credential{}, err
	}
	c.Data = []byte(data)
	c.CreatedAt = fromMillis(created)

	return c, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}

	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
