package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	xerrors "SolTradeBot/internal/errors"
	"SolTradeBot/internal/wallet"
)

// WalletStore persists custodial credentials in MySQL.
type WalletStore struct {
	db *sql.DB
}

// NewWalletStore creates the store using the provided connection settings
// and brings the schema up to date from the embedded migrations.
func NewWalletStore(ctx context.Context, cfg Config) (*WalletStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := &WalletStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database connection pool.
func (s *WalletStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetCredential implements wallet.Store.
func (s *WalletStore) GetCredential(ctx context.Context, userID string) (*wallet.Credential, error) {
	const query = `SELECT private_key FROM wallet_users WHERE user_id = ?`
	var privateKey string
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&privateKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wallet.ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包凭证失败")
	}
	cred, err := wallet.FromBase58(userID, privateKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "钱包数据损坏")
	}
	return cred, nil
}

// GetAddress implements wallet.Store.
func (s *WalletStore) GetAddress(ctx context.Context, userID string) (string, error) {
	const query = `SELECT wallet_address FROM wallet_users WHERE user_id = ?`
	var address string
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", wallet.ErrNotFound
		}
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包地址失败")
	}
	return address, nil
}

// Save implements wallet.Store.
func (s *WalletStore) Save(ctx context.Context, cred *wallet.Credential) error {
	if cred == nil || cred.UserID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "凭证不完整")
	}
	const query = `INSERT INTO wallet_users (user_id, private_key, wallet_address, updated_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE private_key = VALUES(private_key),
        wallet_address = VALUES(wallet_address),
        updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, query,
		cred.UserID, cred.PrivateKey.String(), cred.Address, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存钱包凭证失败")
	}
	return nil
}
