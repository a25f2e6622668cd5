package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"attestry/internal/domain"
	id "attestry/pkg/domain"
)

// PostgresLedger persists ledger state in PostgreSQL. Atomicity comes from
// single guarded statements where possible and from transactions where a step
// spans two tables (payment consumption + registration write).
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger constructs a PostgreSQL-backed ledger.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate creates the ledger tables when absent.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS module_state (
			singleton        BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			admin            TEXT,
			renounced        BOOLEAN NOT NULL DEFAULT FALSE,
			token_contract   TEXT NOT NULL,
			token_wasm_hash  TEXT NOT NULL,
			registration_fee BIGINT NOT NULL,
			levy_amount      BIGINT NOT NULL,
			initialized_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payment_records (
			payer       TEXT PRIMARY KEY,
			recipient   TEXT NOT NULL,
			ref_id      TEXT NOT NULL,
			amount_paid BIGINT NOT NULL,
			paid_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS authority_records (
			address         TEXT PRIMARY KEY,
			metadata        TEXT NOT NULL,
			ref_id          TEXT NOT NULL,
			registered_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS authority_balances (
			authority TEXT PRIMARY KEY,
			fees      BIGINT NOT NULL DEFAULT 0 CHECK (fees >= 0),
			levies    BIGINT NOT NULL DEFAULT 0 CHECK (levies >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS pool_balance (
			singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			balance   BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
		)`,
		`INSERT INTO pool_balance (singleton, balance) VALUES (TRUE, 0)
			ON CONFLICT (singleton) DO NOTHING`,
		`CREATE TABLE IF NOT EXISTS attestations (
			uid        TEXT PRIMARY KEY,
			schema_uid TEXT NOT NULL,
			attester   TEXT NOT NULL,
			recipient  TEXT NOT NULL,
			data       BYTEA,
			issued_at  TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ,
			ref_uid    TEXT,
			revocable  BOOLEAN NOT NULL,
			value      BIGINT,
			state      TEXT NOT NULL,
			revoked_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate ledger: %w", err)
		}
	}
	return nil
}

func (l *PostgresLedger) CreateState(ctx context.Context, state domain.ModuleState) error {
	var admin sql.NullString
	if state.Admin != nil {
		admin = sql.NullString{String: state.Admin.String(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO module_state (singleton, admin, renounced, token_contract, token_wasm_hash, registration_fee, levy_amount, initialized_at)
		 VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (singleton) DO NOTHING`,
		admin, state.Renounced, state.TokenContractID.String(), state.TokenWasmHash,
		state.RegistrationFee, state.LevyAmount, state.InitializedAt)
	if err != nil {
		return fmt.Errorf("create module state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (l *PostgresLedger) GetState(ctx context.Context) (domain.ModuleState, error) {
	var (
		state domain.ModuleState
		admin sql.NullString
		token string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT admin, renounced, token_contract, token_wasm_hash, registration_fee, levy_amount, initialized_at
		 FROM module_state WHERE singleton`).
		Scan(&admin, &state.Renounced, &token, &state.TokenWasmHash,
			&state.RegistrationFee, &state.LevyAmount, &state.InitializedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ModuleState{}, ErrNotFound
	}
	if err != nil {
		return domain.ModuleState{}, fmt.Errorf("get module state: %w", err)
	}
	state.TokenContractID = id.Address(token)
	if admin.Valid {
		a := id.Address(admin.String)
		state.Admin = &a
	}
	return state, nil
}

func (l *PostgresLedger) SwapAdmin(ctx context.Context, expect id.Address, next *id.Address) error {
	var (
		res sql.Result
		err error
	)
	if next == nil {
		res, err = l.db.ExecContext(ctx,
			`UPDATE module_state SET admin = NULL, renounced = TRUE
			 WHERE singleton AND NOT renounced AND admin = $1`, expect.String())
	} else {
		res, err = l.db.ExecContext(ctx,
			`UPDATE module_state SET admin = $2
			 WHERE singleton AND NOT renounced AND admin = $1`, expect.String(), next.String())
	}
	if err != nil {
		return fmt.Errorf("swap admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// The guarded update missed; read state to report which fact blocked it.
	state, err := l.GetState(ctx)
	if err != nil {
		return err
	}
	if state.Renounced {
		return ErrInvalidState
	}
	return ErrConflict
}

func (l *PostgresLedger) CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO payment_records (payer, recipient, ref_id, amount_paid, paid_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (payer) DO NOTHING`,
		rec.Payer.String(), rec.Recipient.String(), rec.RefID.String(), rec.AmountPaid, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("create payment record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (l *PostgresLedger) DeletePaymentRecord(ctx context.Context, payer id.Address) error {
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM payment_records WHERE payer = $1`, payer.String())
	if err != nil {
		return fmt.Errorf("delete payment record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPayment(row *sql.Row) (domain.PaymentRecord, error) {
	var (
		rec                     domain.PaymentRecord
		payer, recipient, refID string
	)
	err := row.Scan(&payer, &recipient, &refID, &rec.AmountPaid, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("scan payment record: %w", err)
	}
	rec.Payer = id.Address(payer)
	rec.Recipient = id.Address(recipient)
	rec.RefID = id.RefID(refID)
	return rec, nil
}

func (l *PostgresLedger) GetPaymentRecord(ctx context.Context, payer id.Address) (domain.PaymentRecord, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT payer, recipient, ref_id, amount_paid, paid_at
		 FROM payment_records WHERE payer = $1`, payer.String())
	return scanPayment(row)
}

func (l *PostgresLedger) creditBalance(ctx context.Context, column string, authority id.Address, amount int64) error {
	// The WHERE guard rejects credits that would exceed the int64 range
	// instead of letting them wrap or trip the bigint error path.
	query := fmt.Sprintf(
		`INSERT INTO authority_balances (authority, %[1]s) VALUES ($1, $2)
		 ON CONFLICT (authority) DO UPDATE SET %[1]s = authority_balances.%[1]s + EXCLUDED.%[1]s
		 WHERE authority_balances.%[1]s <= $3 - EXCLUDED.%[1]s`, column)
	res, err := l.db.ExecContext(ctx, query, authority.String(), amount, int64(math.MaxInt64))
	if err != nil {
		return fmt.Errorf("credit %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOverflow
	}
	return nil
}

func (l *PostgresLedger) CreditFees(ctx context.Context, authority id.Address, amount int64) error {
	return l.creditBalance(ctx, "fees", authority, amount)
}

func (l *PostgresLedger) CreditLevies(ctx context.Context, authority id.Address, amount int64) error {
	return l.creditBalance(ctx, "levies", authority, amount)
}

func (l *PostgresLedger) sweepBalance(ctx context.Context, column string, authority id.Address) (int64, error) {
	// Read-and-zero runs in a short transaction holding the row lock, so two
	// concurrent withdrawals can never both observe a positive balance.
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sweep %s: begin: %w", column, err)
	}
	defer func() { _ = tx.Rollback() }()

	var amount int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM authority_balances WHERE authority = $1 FOR UPDATE`, column),
		authority.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, tx.Commit()
	}
	if err != nil {
		return 0, fmt.Errorf("sweep %s: read: %w", column, err)
	}
	if amount > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			`UPDATE authority_balances SET %s = 0 WHERE authority = $1`, column),
			authority.String()); err != nil {
			return 0, fmt.Errorf("sweep %s: zero: %w", column, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sweep %s: commit: %w", column, err)
	}
	return amount, nil
}

func (l *PostgresLedger) SweepFees(ctx context.Context, authority id.Address) (int64, error) {
	return l.sweepBalance(ctx, "fees", authority)
}

func (l *PostgresLedger) SweepLevies(ctx context.Context, authority id.Address) (int64, error) {
	return l.sweepBalance(ctx, "levies", authority)
}

func (l *PostgresLedger) getBalance(ctx context.Context, column string, authority id.Address) (int64, error) {
	var amount int64
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM authority_balances WHERE authority = $1`, column),
		authority.String()).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", column, err)
	}
	return amount, nil
}

func (l *PostgresLedger) GetCollectedFees(ctx context.Context, authority id.Address) (int64, error) {
	return l.getBalance(ctx, "fees", authority)
}

func (l *PostgresLedger) GetCollectedLevies(ctx context.Context, authority id.Address) (int64, error) {
	return l.getBalance(ctx, "levies", authority)
}

func (l *PostgresLedger) CreditPool(ctx context.Context, amount int64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE pool_balance SET balance = balance + $1
		 WHERE singleton AND balance <= $2 - $1`, amount, int64(math.MaxInt64))
	if err != nil {
		return fmt.Errorf("credit pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOverflow
	}
	return nil
}

func (l *PostgresLedger) DebitPool(ctx context.Context, amount int64) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE pool_balance SET balance = balance - $1
		 WHERE singleton AND balance >= $1`, amount)
	if err != nil {
		return fmt.Errorf("debit pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInsufficient
	}
	return nil
}

func (l *PostgresLedger) PoolBalance(ctx context.Context) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM pool_balance WHERE singleton`).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pool balance: %w", err)
	}
	return balance, nil
}

func (l *PostgresLedger) CreateAuthority(ctx context.Context, rec domain.RegisteredAuthorityData) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO authority_records (address, metadata, ref_id, registered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO NOTHING`,
		rec.Address.String(), rec.Metadata, rec.RefID.String(), rec.RegistrationTime)
	if err != nil {
		return fmt.Errorf("create authority: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (l *PostgresLedger) GetAuthority(ctx context.Context, authority id.Address) (domain.RegisteredAuthorityData, error) {
	var (
		rec            domain.RegisteredAuthorityData
		address, refID string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT address, metadata, ref_id, registered_at
		 FROM authority_records WHERE address = $1`, authority.String()).
		Scan(&address, &rec.Metadata, &refID, &rec.RegistrationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegisteredAuthorityData{}, ErrNotFound
	}
	if err != nil {
		return domain.RegisteredAuthorityData{}, fmt.Errorf("get authority: %w", err)
	}
	rec.Address = id.Address(address)
	rec.RefID = id.RefID(refID)
	return rec, nil
}

func (l *PostgresLedger) RegisterWithPayment(ctx context.Context, rec domain.RegisteredAuthorityData, payer id.Address, validate func(domain.PaymentRecord) error) (domain.PaymentRecord, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("register: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM authority_records WHERE address = $1)`,
		rec.Address.String()).Scan(&exists); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("register: check authority: %w", err)
	}
	if exists {
		return domain.PaymentRecord{}, ErrConflict
	}

	row := tx.QueryRowContext(ctx,
		`SELECT payer, recipient, ref_id, amount_paid, paid_at
		 FROM payment_records WHERE payer = $1 FOR UPDATE`, payer.String())
	payment, err := scanPayment(row)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	if validate != nil {
		if err := validate(payment); err != nil {
			return domain.PaymentRecord{}, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payment_records WHERE payer = $1`, payer.String()); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("register: consume payment: %w", err)
	}
	// The EXISTS check above is not serialized against concurrent inserts,
	// so the write itself decides the duplicate like CreateAuthority does.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO authority_records (address, metadata, ref_id, registered_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO NOTHING`,
		rec.Address.String(), rec.Metadata, rec.RefID.String(), rec.RegistrationTime)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("register: write authority: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.PaymentRecord{}, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("register: commit: %w", err)
	}
	return payment, nil
}

func (l *PostgresLedger) ClaimActive(ctx context.Context, att domain.Attestation) error {
	var (
		expires sql.NullTime
		refUID  sql.NullString
		value   sql.NullInt64
	)
	if att.ExpirationTime != nil {
		expires = sql.NullTime{Time: *att.ExpirationTime, Valid: true}
	}
	if att.RefUID != nil {
		refUID = sql.NullString{String: att.RefUID.String(), Valid: true}
	}
	if att.Value != nil {
		value = sql.NullInt64{Int64: *att.Value, Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO attestations (uid, schema_uid, attester, recipient, data, issued_at, expires_at, ref_uid, revocable, value, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (uid) DO NOTHING`,
		att.UID.String(), att.SchemaUID.String(), att.Attester.String(), att.Recipient.String(),
		att.Data, att.Time, expires, refUID, att.Revocable, value, string(domain.AttestationActive))
	if err != nil {
		return fmt.Errorf("claim attestation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (l *PostgresLedger) MarkRevoked(ctx context.Context, uid id.AttestationUID) (domain.StoredAttestation, error) {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx,
		`UPDATE attestations SET state = $2, revoked_at = $3
		 WHERE uid = $1 AND state = $4`,
		uid.String(), string(domain.AttestationRevoked), now, string(domain.AttestationActive))
	if err != nil {
		return domain.StoredAttestation{}, fmt.Errorf("revoke attestation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := l.GetAttestation(ctx, uid); getErr != nil {
			return domain.StoredAttestation{}, getErr
		}
		return domain.StoredAttestation{}, ErrInvalidState
	}
	return l.GetAttestation(ctx, uid)
}

func (l *PostgresLedger) GetAttestation(ctx context.Context, uid id.AttestationUID) (domain.StoredAttestation, error) {
	var (
		stored            domain.StoredAttestation
		uidCol, schemaUID string
		attester, recip   string
		expires           sql.NullTime
		refUID            sql.NullString
		value             sql.NullInt64
		state             string
		revokedAt         sql.NullTime
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT uid, schema_uid, attester, recipient, data, issued_at, expires_at, ref_uid, revocable, value, state, revoked_at
		 FROM attestations WHERE uid = $1`, uid.String()).
		Scan(&uidCol, &schemaUID, &attester, &recip, &stored.Attestation.Data,
			&stored.Attestation.Time, &expires, &refUID, &stored.Attestation.Revocable,
			&value, &state, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredAttestation{}, ErrNotFound
	}
	if err != nil {
		return domain.StoredAttestation{}, fmt.Errorf("get attestation: %w", err)
	}
	stored.Attestation.UID = id.AttestationUID(uidCol)
	stored.Attestation.SchemaUID = id.SchemaUID(schemaUID)
	stored.Attestation.Attester = id.Address(attester)
	stored.Attestation.Recipient = id.Address(recip)
	if expires.Valid {
		t := expires.Time
		stored.Attestation.ExpirationTime = &t
	}
	if refUID.Valid {
		r := id.AttestationUID(refUID.String)
		stored.Attestation.RefUID = &r
	}
	if value.Valid {
		v := value.Int64
		stored.Attestation.Value = &v
	}
	stored.State = domain.AttestationState(state)
	if revokedAt.Valid {
		t := revokedAt.Time
		stored.RevokedAt = &t
	}
	return stored, nil
}
