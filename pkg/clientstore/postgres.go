package clientstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/x402zk/credential-gateway/pkg/credential"
	"github.com/x402zk/credential-gateway/pkg/curve"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/schnorr"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS zkcred_stored_credentials (
	service_id          TEXT PRIMARY KEY,
	suite               TEXT NOT NULL,
	tier                INTEGER NOT NULL,
	identity_budget     INTEGER NOT NULL,
	issued_at           BIGINT NOT NULL,
	expires_at          BIGINT NOT NULL,
	commitment_x        TEXT NOT NULL,
	commitment_y        TEXT NOT NULL,
	signature_rx        TEXT NOT NULL,
	signature_ry        TEXT NOT NULL,
	signature_s         TEXT NOT NULL,
	key_id              TEXT NOT NULL DEFAULT '',
	nullifier_seed      TEXT NOT NULL,
	blinding_factor     TEXT NOT NULL,
	facilitator_pubkey_x TEXT NOT NULL,
	facilitator_pubkey_y TEXT NOT NULL,
	presentation_count  INTEGER NOT NULL DEFAULT 0,
	obtained_at         BIGINT NOT NULL
)`

// PostgresStore persists StoredCredentials in a Postgres table, following
// the teacher's database client conventions (lib/pq driver registered via
// blank import, connection pool configured up front, functional-option
// logger).
type PostgresStore struct {
	db     *sql.DB
	logger *log.Logger
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithLogger overrides the store's default logger.
func WithLogger(logger *log.Logger) PostgresOption {
	return func(s *PostgresStore) { s.logger = logger }
}

// NewPostgresStore opens a connection pool against url and ensures the
// backing table exists.
func NewPostgresStore(url string, opts ...PostgresOption) (*PostgresStore, error) {
	if url == "" {
		return nil, fmt.Errorf("clientstore: postgres url cannot be empty")
	}
	s := &PostgresStore{
		logger: log.New(log.Writer(), "[ClientStore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("clientstore: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("clientstore: ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("clientstore: create table: %w", err)
	}

	s.db = db
	s.logger.Printf("connected to credential store database")
	return s, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, serviceID string) (credential.StoredCredential, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT suite, tier, identity_budget, issued_at, expires_at,
		       commitment_x, commitment_y, signature_rx, signature_ry, signature_s, key_id,
		       nullifier_seed, blinding_factor, facilitator_pubkey_x, facilitator_pubkey_y,
		       presentation_count, obtained_at
		FROM zkcred_stored_credentials WHERE service_id = $1`, serviceID)

	var (
		suiteName, cx, cy, rx, ry, sHex, keyID string
		nullifierHex, blindingHex, pkx, pky    string
		tier, identityBudget, presentCount     int
		issuedAt, expiresAt, obtainedAt        int64
	)
	err := row.Scan(&suiteName, &tier, &identityBudget, &issuedAt, &expiresAt,
		&cx, &cy, &rx, &ry, &sHex, &keyID,
		&nullifierHex, &blindingHex, &pkx, &pky,
		&presentCount, &obtainedAt)
	if err == sql.ErrNoRows {
		return credential.StoredCredential{}, false, nil
	}
	if err != nil {
		return credential.StoredCredential{}, false, fmt.Errorf("clientstore: scan row: %w", err)
	}

	sc, err := decodeStoredCredential(suiteName, tier, identityBudget, issuedAt, expiresAt,
		cx, cy, rx, ry, sHex, keyID, nullifierHex, blindingHex, pkx, pky, presentCount, obtainedAt)
	if err != nil {
		return credential.StoredCredential{}, false, err
	}
	return sc, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, serviceID string, cred credential.StoredCredential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zkcred_stored_credentials (
			service_id, suite, tier, identity_budget, issued_at, expires_at,
			commitment_x, commitment_y, signature_rx, signature_ry, signature_s, key_id,
			nullifier_seed, blinding_factor, facilitator_pubkey_x, facilitator_pubkey_y,
			presentation_count, obtained_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (service_id) DO UPDATE SET
			suite = EXCLUDED.suite, tier = EXCLUDED.tier, identity_budget = EXCLUDED.identity_budget,
			issued_at = EXCLUDED.issued_at, expires_at = EXCLUDED.expires_at,
			commitment_x = EXCLUDED.commitment_x, commitment_y = EXCLUDED.commitment_y,
			signature_rx = EXCLUDED.signature_rx, signature_ry = EXCLUDED.signature_ry, signature_s = EXCLUDED.signature_s,
			key_id = EXCLUDED.key_id, nullifier_seed = EXCLUDED.nullifier_seed, blinding_factor = EXCLUDED.blinding_factor,
			facilitator_pubkey_x = EXCLUDED.facilitator_pubkey_x, facilitator_pubkey_y = EXCLUDED.facilitator_pubkey_y,
			presentation_count = EXCLUDED.presentation_count, obtained_at = EXCLUDED.obtained_at`,
		serviceID, cred.Credential.Suite, cred.Credential.Tier, cred.Credential.IdentityBudget,
		cred.Credential.IssuedAt, cred.Credential.ExpiresAt,
		cred.Credential.Commitment.X.Hex(), cred.Credential.Commitment.Y.Hex(),
		cred.Credential.Signature.R.X.Hex(), cred.Credential.Signature.R.Y.Hex(), field.FromBigInt(cred.Credential.Signature.S).Hex(),
		cred.Credential.KeyID,
		cred.NullifierSeed.Hex(), cred.BlindingFactor.Hex(),
		cred.FacilitatorPubkey.X.Hex(), cred.FacilitatorPubkey.Y.Hex(),
		cred.PresentationCount, cred.ObtainedAt,
	)
	if err != nil {
		return fmt.Errorf("clientstore: upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, serviceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM zkcred_stored_credentials WHERE service_id = $1`, serviceID)
	if err != nil {
		return fmt.Errorf("clientstore: delete credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]credential.StoredCredential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT service_id FROM zkcred_stored_credentials`)
	if err != nil {
		return nil, fmt.Errorf("clientstore: list service ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("clientstore: scan service id: %w", err)
		}
		ids = append(ids, id)
	}

	out := make([]credential.StoredCredential, 0, len(ids))
	for _, id := range ids {
		sc, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM zkcred_stored_credentials`)
	if err != nil {
		return fmt.Errorf("clientstore: clear store: %w", err)
	}
	return nil
}

// IncrementPresentationCount uses an atomic UPDATE ... RETURNING so
// concurrent callers against the same service observe strictly monotonic
// counts without a separate row lock.
func (s *PostgresStore) IncrementPresentationCount(ctx context.Context, serviceID string) (int, error) {
	var newCount int
	err := s.db.QueryRowContext(ctx, `
		UPDATE zkcred_stored_credentials
		SET presentation_count = presentation_count + 1
		WHERE service_id = $1
		RETURNING presentation_count`, serviceID).Scan(&newCount)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("clientstore: increment presentation count: %w", err)
	}
	return newCount, nil
}

func decodeStoredCredential(suiteName string, tier, identityBudget int, issuedAt, expiresAt int64,
	cx, cy, rx, ry, sHex, keyID, nullifierHex, blindingHex, pkx, pky string, presentCount int, obtainedAt int64,
) (credential.StoredCredential, error) {
	cxE, err := field.FromHex(cx)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	cyE, err := field.FromHex(cy)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	rxE, err := field.FromHex(rx)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	ryE, err := field.FromHex(ry)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	sE, err := field.FromHex(sHex)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	nullifier, err := field.FromHex(nullifierHex)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	blinding, err := field.FromHex(blindingHex)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	pkxE, err := field.FromHex(pkx)
	if err != nil {
		return credential.StoredCredential{}, err
	}
	pkyE, err := field.FromHex(pky)
	if err != nil {
		return credential.StoredCredential{}, err
	}

	return credential.StoredCredential{
		Credential: credential.Credential{
			Suite:          suiteName,
			ServiceID:      field.Zero(), // not persisted; re-derived from config at load time by the caller
			Tier:           tier,
			IdentityBudget: identityBudget,
			IssuedAt:       issuedAt,
			ExpiresAt:      expiresAt,
			Commitment:     curve.Point{X: cxE, Y: cyE},
			Signature:      schnorr.Signature{R: curve.Point{X: rxE, Y: ryE}, S: sE.BigInt()},
			KeyID:          keyID,
		},
		NullifierSeed:     nullifier,
		BlindingFactor:    blinding,
		FacilitatorPubkey: curve.Point{X: pkxE, Y: pkyE},
		PresentationCount: presentCount,
		ObtainedAt:        obtainedAt,
	}, nil
}
