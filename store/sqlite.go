package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vorpalengineering/paylink-go/types"

	_ "modernc.org/sqlite"
)

// SQLiteBackend persists payment requests in a SQLite database. Amounts are
// stored as decimal strings, timestamps as unix seconds.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sb := &SQLiteBackend{db: db}
	if err := sb.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return sb, nil
}

func (sb *SQLiteBackend) Close() error {
	return sb.db.Close()
}

func (sb *SQLiteBackend) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS payment_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT NOT NULL UNIQUE,
		merchant_id TEXT NOT NULL,
		recipient_address TEXT NOT NULL,
		order_id TEXT,
		description TEXT,
		amount_usd TEXT NOT NULL,
		rate_snapshot TEXT NOT NULL,
		amount_token TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Pending',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		superseded_by TEXT,
		settlement_tx TEXT,
		settled_at INTEGER,
		settled_amount TEXT,
		success_callback TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_merchant ON payment_requests(merchant_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON payment_requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_expires ON payment_requests(status, expires_at);
	`

	_, err := sb.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// execer covers *sql.DB and *sql.Tx so the write statements can run either
// standalone or inside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (sb *SQLiteBackend) Insert(req *types.PaymentRequest) error {
	return insertRequest(sb.db, req)
}

func insertRequest(e execer, req *types.PaymentRequest) error {
	query := `
	INSERT INTO payment_requests (
		reference, merchant_id, recipient_address, order_id, description,
		amount_usd, rate_snapshot, amount_token, status,
		created_at, expires_at, superseded_by, success_callback
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := e.Exec(query,
		req.Reference,
		req.MerchantID,
		req.RecipientAddress,
		req.OrderID,
		req.Description,
		req.AmountUSD.String(),
		req.ConversionRateSnapshot.String(),
		req.AmountToken.String(),
		string(req.Status),
		req.CreatedAt.Unix(),
		req.ExpiresAt.Unix(),
		req.SupersededBy,
		req.SuccessCallback,
	)
	if err != nil {
		// UNIQUE violation on reference
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert payment request: %w", err)
	}
	return nil
}

func (sb *SQLiteBackend) Get(reference string) (*types.PaymentRequest, error) {
	query := `
	SELECT reference, merchant_id, recipient_address, order_id, description,
		   amount_usd, rate_snapshot, amount_token, status,
		   created_at, expires_at, superseded_by,
		   settlement_tx, settled_at, settled_amount, success_callback
	FROM payment_requests
	WHERE reference = ?
	`

	row := sb.db.QueryRow(query, reference)
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payment request: %w", err)
	}
	return req, nil
}

func (sb *SQLiteBackend) Update(req *types.PaymentRequest) error {
	return updateRequest(sb.db, req)
}

func updateRequest(e execer, req *types.PaymentRequest) error {
	query := `
	UPDATE payment_requests
	SET status = ?,
		superseded_by = ?,
		settlement_tx = ?,
		settled_at = ?,
		settled_amount = ?
	WHERE reference = ?
	`

	var settlementTx, settledAmount sql.NullString
	var settledAt sql.NullInt64
	if req.Settlement != nil {
		settlementTx = sql.NullString{String: req.Settlement.TransactionID, Valid: true}
		settledAt = sql.NullInt64{Int64: req.Settlement.SettledAt.Unix(), Valid: true}
		settledAmount = sql.NullString{String: req.Settlement.SettledAmountToken.String(), Valid: true}
	}

	result, err := e.Exec(query,
		string(req.Status),
		req.SupersededBy,
		settlementTx,
		settledAt,
		settledAmount,
		req.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment request: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Supersede runs the successor insert and the predecessor link in a single
// transaction: a failed link never leaves a live successor behind.
func (sb *SQLiteBackend) Supersede(predecessor, successor *types.PaymentRequest) error {
	tx, err := sb.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin supersede transaction: %w", err)
	}

	if err := insertRequest(tx, successor); err != nil {
		tx.Rollback()
		return err
	}
	if err := updateRequest(tx, predecessor); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit supersede: %w", err)
	}
	return nil
}

func (sb *SQLiteBackend) ListPendingBefore(deadline time.Time) ([]string, error) {
	query := `
	SELECT reference FROM payment_requests
	WHERE status = 'Pending' AND expires_at <= ?
	ORDER BY expires_at ASC
	`

	rows, err := sb.db.Query(query, deadline.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired requests: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (sb *SQLiteBackend) List(merchantID string, status types.Status, limit int) ([]*types.PaymentRequest, error) {
	query := `
	SELECT reference, merchant_id, recipient_address, order_id, description,
		   amount_usd, rate_snapshot, amount_token, status,
		   created_at, expires_at, superseded_by,
		   settlement_tx, settled_at, settled_amount, success_callback
	FROM payment_requests
	WHERE 1=1
	`

	args := []any{}
	if merchantID != "" {
		query += " AND merchant_id = ?"
		args = append(args, merchantID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := sb.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment requests: %w", err)
	}
	defer rows.Close()

	var out []*types.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*types.PaymentRequest, error) {
	req := &types.PaymentRequest{}
	var orderID, description, supersededBy, successCallback sql.NullString
	var amountUSD, rateSnapshot, amountToken string
	var status string
	var createdAt, expiresAt int64
	var settlementTx, settledAmount sql.NullString
	var settledAt sql.NullInt64

	err := row.Scan(
		&req.Reference,
		&req.MerchantID,
		&req.RecipientAddress,
		&orderID,
		&description,
		&amountUSD,
		&rateSnapshot,
		&amountToken,
		&status,
		&createdAt,
		&expiresAt,
		&supersededBy,
		&settlementTx,
		&settledAt,
		&settledAmount,
		&successCallback,
	)
	if err != nil {
		return nil, err
	}

	req.OrderID = orderID.String
	req.Description = description.String
	req.SupersededBy = supersededBy.String
	req.SuccessCallback = successCallback.String
	req.Status = types.Status(status)
	req.CreatedAt = time.Unix(createdAt, 0).UTC()
	req.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if req.AmountUSD, err = decimal.NewFromString(amountUSD); err != nil {
		return nil, fmt.Errorf("corrupt amount_usd for %s: %w", req.Reference, err)
	}
	if req.ConversionRateSnapshot, err = decimal.NewFromString(rateSnapshot); err != nil {
		return nil, fmt.Errorf("corrupt rate_snapshot for %s: %w", req.Reference, err)
	}
	if req.AmountToken, err = decimal.NewFromString(amountToken); err != nil {
		return nil, fmt.Errorf("corrupt amount_token for %s: %w", req.Reference, err)
	}

	if settlementTx.Valid && settlementTx.String != "" {
		settledAmt, err := decimal.NewFromString(settledAmount.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt settled_amount for %s: %w", req.Reference, err)
		}
		req.Settlement = &types.Settlement{
			TransactionID:      settlementTx.String,
			SettledAt:          time.Unix(settledAt.Int64, 0).UTC(),
			SettledAmountToken: settledAmt,
		}
	}

	return req, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
