package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/radieske/pump-rug-market-poc/internal/market-engine/domain"
	"github.com/radieske/pump-rug-market-poc/internal/market-engine/store"
)

// Store é um ledger em memória. Transações são serializadas: o estado é
// clonado no início e trocado no commit, então um erro descarta tudo.
// Usado em testes e com STORE_DRIVER=memory.
type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[string]*fault
	locked map[string]bool // ids de mercado/aposta tratados como travados por outro processo
	txs    int
}

type fault struct {
	after int // chamadas que passam antes de falhar
	err   error
	times int // quantas vezes falha; <=0 = sempre
}

func New() *Store {
	return &Store{state: newState(), faults: map[string]*fault{}, locked: map[string]bool{}}
}

// InjectFault faz a operação op falhar com err depois de `after` chamadas
// bem-sucedidas, por `times` vezes (0 = sempre). op é o nome do método do Tx
// ou "Commit".
func (s *Store) InjectFault(op string, after int, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{after: after, err: err, times: times}
}

// ClearFaults remove todas as falhas injetadas
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[string]*fault{}
}

// HoldLock simula outro processo segurando o lock da linha id
func (s *Store) HoldLock(id string, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held {
		s.locked[id] = true
	} else {
		delete(s.locked, id)
	}
}

// TxCount retorna quantas transações foram abertas
func (s *Store) TxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txs
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs++

	work := s.state.clone()
	t := &tx{st: work, s: s}
	if err := fn(t); err != nil {
		return err
	}
	if err := s.trip("Commit"); err != nil {
		return err
	}
	s.state = work
	return nil
}

// trip é chamado com s.mu travado
func (s *Store) trip(op string) error {
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.after > 0 {
		f.after--
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

type state struct {
	markets     map[string]domain.Market
	marketOrder []string
	bets        map[string]domain.Bet
	betOrder    []string
	units       map[string]domain.BetUnit
	unitOrder   []string
	matches     []domain.Match
	refunds     []domain.Refund
	history     []domain.StatusHistory
	payouts     map[string]domain.Payout
	payoutOrder []string
}

func newState() *state {
	return &state{
		markets: map[string]domain.Market{},
		bets:    map[string]domain.Bet{},
		units:   map[string]domain.BetUnit{},
		payouts: map[string]domain.Payout{},
	}
}

func (st *state) clone() *state {
	c := &state{
		markets:     make(map[string]domain.Market, len(st.markets)),
		marketOrder: append([]string(nil), st.marketOrder...),
		bets:        make(map[string]domain.Bet, len(st.bets)),
		betOrder:    append([]string(nil), st.betOrder...),
		units:       make(map[string]domain.BetUnit, len(st.units)),
		unitOrder:   append([]string(nil), st.unitOrder...),
		matches:     append([]domain.Match(nil), st.matches...),
		refunds:     append([]domain.Refund(nil), st.refunds...),
		history:     append([]domain.StatusHistory(nil), st.history...),
		payouts:     make(map[string]domain.Payout, len(st.payouts)),
		payoutOrder: append([]string(nil), st.payoutOrder...),
	}
	for k, v := range st.markets {
		c.markets[k] = v
	}
	for k, v := range st.bets {
		c.bets[k] = v
	}
	for k, v := range st.units {
		c.units[k] = v
	}
	for k, v := range st.payouts {
		v.BetIDs = append([]string(nil), v.BetIDs...)
		c.payouts[k] = v
	}
	return c
}

type tx struct {
	st *state
	s  *Store
}

var _ store.Tx = (*tx)(nil)

func (t *tx) InsertMarket(_ context.Context, m *domain.Market) error {
	if err := t.s.trip("InsertMarket"); err != nil {
		return err
	}
	if _, ok := t.st.markets[m.ID]; ok {
		return fmt.Errorf("memory: insert market %s: duplicate id", m.ID)
	}
	t.st.markets[m.ID] = *m
	t.st.marketOrder = append(t.st.marketOrder, m.ID)
	return nil
}

func (t *tx) GetMarket(_ context.Context, id string) (*domain.Market, error) {
	if err := t.s.trip("GetMarket"); err != nil {
		return nil, err
	}
	m, ok := t.st.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return &m, nil
}

func (t *tx) LockMarket(ctx context.Context, id string) (*domain.Market, error) {
	if err := t.s.trip("LockMarket"); err != nil {
		return nil, err
	}
	m, ok := t.st.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if t.s.locked[id] {
		return nil, store.ErrRowLocked
	}
	return &m, nil
}

func (t *tx) GetMarketForUpdate(ctx context.Context, id string) (*domain.Market, error) {
	if err := t.s.trip("GetMarketForUpdate"); err != nil {
		return nil, err
	}
	return t.GetMarket(ctx, id)
}

func (t *tx) UpdateMarket(_ context.Context, m *domain.Market) error {
	if err := t.s.trip("UpdateMarket"); err != nil {
		return err
	}
	if _, ok := t.st.markets[m.ID]; !ok {
		return domain.ErrMarketNotFound
	}
	t.st.markets[m.ID] = *m
	return nil
}

func (t *tx) ApplyMarketDelta(_ context.Context, id string, d domain.MarketDelta) (*domain.Market, error) {
	if err := t.s.trip("ApplyMarketDelta"); err != nil {
		return nil, err
	}
	m, ok := t.st.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	m.PumpPool = m.PumpPool.Add(d.PumpPool)
	m.RugPool = m.RugPool.Add(d.RugPool)
	m.PumpMatched = m.PumpMatched.Add(d.PumpMatched)
	m.RugMatched = m.RugMatched.Add(d.RugMatched)
	t.st.markets[id] = m
	return &m, nil
}

func (t *tx) SetMarketOdds(_ context.Context, id string, pump, rug decimal.Decimal) error {
	if err := t.s.trip("SetMarketOdds"); err != nil {
		return err
	}
	m, ok := t.st.markets[id]
	if !ok {
		return domain.ErrMarketNotFound
	}
	m.PumpOdds, m.RugOdds = pump, rug
	t.st.markets[id] = m
	return nil
}

func (t *tx) ListMarketsToProcess(_ context.Context, limit int) ([]domain.Market, error) {
	pendingPayout := map[string]bool{}
	for _, p := range t.st.payouts {
		if p.Status == domain.PayoutPending {
			pendingPayout[p.MarketID] = true
		}
	}
	var out []domain.Market
	for _, id := range t.st.marketOrder {
		m := t.st.markets[id]
		if m.Phase != domain.PhaseSettled || pendingPayout[id] {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) InsertBet(_ context.Context, b *domain.Bet) error {
	if err := t.s.trip("InsertBet"); err != nil {
		return err
	}
	if _, ok := t.st.bets[b.ID]; ok {
		return fmt.Errorf("memory: insert bet %s: duplicate id", b.ID)
	}
	t.st.bets[b.ID] = *b
	t.st.betOrder = append(t.st.betOrder, b.ID)
	return nil
}

func (t *tx) GetBet(_ context.Context, id string) (*domain.Bet, error) {
	if err := t.s.trip("GetBet"); err != nil {
		return nil, err
	}
	b, ok := t.st.bets[id]
	if !ok {
		return nil, domain.ErrBetNotFound
	}
	return &b, nil
}

func (t *tx) LockBet(ctx context.Context, id string) (*domain.Bet, error) {
	if err := t.s.trip("LockBet"); err != nil {
		return nil, err
	}
	b, ok := t.st.bets[id]
	if !ok {
		return nil, domain.ErrBetNotFound
	}
	if t.s.locked[id] {
		return nil, store.ErrRowLocked
	}
	return &b, nil
}

func (t *tx) LockBetsByStatus(_ context.Context, marketID string, statuses []domain.BetStatus, limit int) ([]domain.Bet, error) {
	if err := t.s.trip("LockBetsByStatus"); err != nil {
		return nil, err
	}
	var out []domain.Bet
	for _, id := range t.st.betOrder {
		b := t.st.bets[id]
		if b.MarketID != marketID || !hasStatus(statuses, b.Status) || t.s.locked[id] {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *tx) ListBetIDs(_ context.Context, marketID string, statuses []domain.BetStatus) ([]string, error) {
	var out []string
	for _, id := range t.st.betOrder {
		b := t.st.bets[id]
		if b.MarketID == marketID && hasStatus(statuses, b.Status) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *tx) UpdateBet(_ context.Context, b *domain.Bet) error {
	if err := t.s.trip("UpdateBet"); err != nil {
		return err
	}
	if _, ok := t.st.bets[b.ID]; !ok {
		return domain.ErrBetNotFound
	}
	t.st.bets[b.ID] = *b
	return nil
}

func (t *tx) InsertUnit(_ context.Context, u *domain.BetUnit) error {
	if err := t.s.trip("InsertUnit"); err != nil {
		return err
	}
	t.st.units[u.ID] = *u
	t.st.unitOrder = append(t.st.unitOrder, u.ID)
	return nil
}

func (t *tx) LockPendingUnits(_ context.Context, betIDs []string) ([]domain.BetUnit, error) {
	if err := t.s.trip("LockPendingUnits"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(betIDs))
	for _, id := range betIDs {
		want[id] = true
	}
	var out []domain.BetUnit
	for _, id := range t.st.unitOrder {
		u := t.st.units[id]
		if want[u.BetID] && u.Status == domain.UnitPending {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *tx) ListUnits(_ context.Context, betID string) ([]domain.BetUnit, error) {
	var out []domain.BetUnit
	for _, id := range t.st.unitOrder {
		if u := t.st.units[id]; u.BetID == betID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (t *tx) UpdateUnit(_ context.Context, u *domain.BetUnit) error {
	if err := t.s.trip("UpdateUnit"); err != nil {
		return err
	}
	if _, ok := t.st.units[u.ID]; !ok {
		return fmt.Errorf("memory: update unit %s: %w", u.ID, domain.ErrNotFound)
	}
	t.st.units[u.ID] = *u
	return nil
}

func (t *tx) InsertMatch(_ context.Context, m *domain.Match) error {
	if err := t.s.trip("InsertMatch"); err != nil {
		return err
	}
	t.st.matches = append(t.st.matches, *m)
	return nil
}

func (t *tx) ListMatches(_ context.Context, marketID string) ([]domain.Match, error) {
	var out []domain.Match
	for _, m := range t.st.matches {
		if m.MarketID == marketID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *tx) InsertRefund(_ context.Context, r *domain.Refund) error {
	if err := t.s.trip("InsertRefund"); err != nil {
		return err
	}
	t.st.refunds = append(t.st.refunds, *r)
	return nil
}

func (t *tx) SumRefunds(_ context.Context, betID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range t.st.refunds {
		if r.BetID == betID {
			total = total.Add(r.Amount)
		}
	}
	return total, nil
}

func (t *tx) InsertStatusHistory(_ context.Context, h *domain.StatusHistory) error {
	if err := t.s.trip("InsertStatusHistory"); err != nil {
		return err
	}
	t.st.history = append(t.st.history, *h)
	return nil
}

func (t *tx) ListStatusHistory(_ context.Context, betID string) ([]domain.StatusHistory, error) {
	var out []domain.StatusHistory
	for _, h := range t.st.history {
		if h.BetID == betID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *tx) InsertPayout(_ context.Context, p *domain.Payout) error {
	if err := t.s.trip("InsertPayout"); err != nil {
		return err
	}
	cp := *p
	cp.BetIDs = append([]string(nil), p.BetIDs...)
	t.st.payouts[p.ID] = cp
	t.st.payoutOrder = append(t.st.payoutOrder, p.ID)
	return nil
}

func (t *tx) ListPayoutIDs(_ context.Context, marketID string, status domain.PayoutStatus) ([]string, error) {
	var out []string
	for _, id := range t.st.payoutOrder {
		if p := t.st.payouts[id]; p.MarketID == marketID && p.Status == status {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *tx) LockPayout(_ context.Context, id string) (*domain.Payout, error) {
	if err := t.s.trip("LockPayout"); err != nil {
		return nil, err
	}
	p, ok := t.st.payouts[id]
	if !ok {
		return nil, fmt.Errorf("memory: payout %s: %w", id, domain.ErrNotFound)
	}
	if t.s.locked[id] {
		return nil, store.ErrRowLocked
	}
	p.BetIDs = append([]string(nil), p.BetIDs...)
	return &p, nil
}

func (t *tx) UpdatePayout(_ context.Context, p *domain.Payout) error {
	if err := t.s.trip("UpdatePayout"); err != nil {
		return err
	}
	if _, ok := t.st.payouts[p.ID]; !ok {
		return fmt.Errorf("memory: payout %s: %w", p.ID, domain.ErrNotFound)
	}
	cp := *p
	cp.BetIDs = append([]string(nil), p.BetIDs...)
	t.st.payouts[p.ID] = cp
	return nil
}

func hasStatus(list []domain.BetStatus, s domain.BetStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Refunds, Matches e Units expõem o estado comprometido para asserções
func (s *Store) Refunds() []domain.Refund {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Refund(nil), s.state.refunds...)
}

func (s *Store) Matches() []domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Match(nil), s.state.matches...)
}

func (s *Store) History(betID string) []domain.StatusHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.StatusHistory
	for _, h := range s.state.history {
		if h.BetID == betID {
			out = append(out, h)
		}
	}
	return out
}

func (s *Store) Units(betID string) []domain.BetUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BetUnit
	for _, id := range s.state.unitOrder {
		if u := s.state.units[id]; u.BetID == betID {
			out = append(out, u)
		}
	}
	return out
}

func (s *Store) Payouts(marketID string) []domain.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payout
	for _, id := range s.state.payoutOrder {
		if p := s.state.payouts[id]; p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) Bet(id string) (domain.Bet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.bets[id]
	return b, ok
}

func (s *Store) Market(id string) (domain.Market, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.markets[id]
	return m, ok
}
