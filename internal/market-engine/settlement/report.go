package settlement

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Failure identifica o item de um lote que falhou, para reconciliação manual
type Failure struct {
	ID     string // bet id ou payout id
	UserID string
	Err    error
}

// BatchReport agrega o resultado de um lote com falhas isoladas por item
type BatchReport struct {
	MarketID  string
	Processed int
	Skipped   int
	Failed    []Failure

	mu  sync.Mutex
	err error
}

func (r *BatchReport) processed() {
	r.mu.Lock()
	r.Processed++
	r.mu.Unlock()
}

func (r *BatchReport) skipped() {
	r.mu.Lock()
	r.Skipped++
	r.mu.Unlock()
}

func (r *BatchReport) fail(id, userID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, Failure{ID: id, UserID: userID, Err: err})
	r.err = multierr.Append(r.err, fmt.Errorf("%s: %w", id, err))
}

// Err combina os erros de todos os itens; nil se nenhum falhou
func (r *BatchReport) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Partial indica sucesso parcial: algo processou e algo falhou
func (r *BatchReport) Partial() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failed) > 0 && r.Processed > 0
}
