package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// SQLSTATE repetíveis
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"

	classConnectionException = "08"
)

// classify embrulha conflitos de serialização, deadlock e conexão perdida
// com store.ErrTransient; demais erros passam intactos.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if store.IsTransient(err) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s: %w", store.ErrTransient, pqErr.Code.Name(), err)
		}
		if pqErr.Code.Class() == classConnectionException {
			return fmt.Errorf("%w: %s: %w", store.ErrTransient, pqErr.Code.Name(), err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", store.ErrTransient, err)
	}
	return err
}
