package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webcoletivo/coletivosend/pkg/apperror"
)

// ErrNoTransaction は行ロックを伴う操作がトランザクション外で呼ばれたことを示します
var ErrNoTransaction = errors.New("operation requires a transaction")

// BaseRepository はリポジトリ共通のクエリ実行とエラー変換を提供します
type BaseRepository struct {
	txManager *TxManager
}

func NewBaseRepository(txManager *TxManager) *BaseRepository {
	return &BaseRepository{txManager: txManager}
}

// Querier はトランザクション中であればTx、そうでなければPoolを返します
func (r *BaseRepository) Querier(ctx context.Context) Querier {
	return r.txManager.GetQuerier(ctx)
}

// RequireTransaction は FOR UPDATE 系の呼び出し前に使います
func (r *BaseRepository) RequireTransaction(ctx context.Context) error {
	if !r.txManager.InTransaction(ctx) {
		return ErrNoTransaction
	}
	return nil
}

// HandleError はPostgreSQLのエラーをアプリケーションエラーに変換します。
// pgx.ErrNoRows は呼び出し側でリソースごとの不在エラーに変換してください。
func (r *BaseRepository) HandleError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperror.NewConflictError("upload session already exists")
		case "23503": // foreign_key_violation (upload_parts.session_id)
			return apperror.NewSessionNotFoundError()
		case "57P01", "57P03": // admin_shutdown, cannot_connect_now
			return apperror.NewServiceUnavailableError("session store unavailable")
		}
		return apperror.NewInternalError(err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperror.NewServiceUnavailableError("session store unavailable")
	}
	return err
}
