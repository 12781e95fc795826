package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

func TestClassify(t *testing.T) {
	serial := &pq.Error{Code: "40001", Message: "could not serialize access"}
	deadlock := &pq.Error{Code: "40P01", Message: "deadlock detected"}
	unique := &pq.Error{Code: "23505", Message: "duplicate key"}
	connFailure := &pq.Error{Code: "08006", Message: "connection failure"}
	connDone := &pq.Error{Code: "08003", Message: "connection does not exist"}

	assert.Nil(t, classify(nil))
	assert.True(t, store.IsTransient(classify(serial)))
	assert.True(t, store.IsTransient(classify(fmt.Errorf("update bet: %w", deadlock))))
	assert.True(t, store.IsTransient(classify(driver.ErrBadConn)))
	assert.True(t, store.IsTransient(classify(connFailure)))
	assert.True(t, store.IsTransient(classify(fmt.Errorf("insert unit: %w", connDone))))

	err := classify(serial)
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr), "erro original preservado")

	assert.False(t, store.IsTransient(classify(unique)))
	assert.False(t, store.IsTransient(classify(domain.ErrUnitSumMismatch)))
	assert.ErrorIs(t, classify(domain.ErrUnitSumMismatch), domain.ErrInvariantViolation)
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "x", nullString("x"))

	var empty []byte
	s, err := decodeSnapshot(empty)
	assert.NoError(t, err)
	assert.Nil(t, s)
}
