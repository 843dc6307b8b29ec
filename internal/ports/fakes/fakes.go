// Copyright 2025 Certen Protocol
//
// In-memory fakes for the narrow external-collaborator interfaces, for use
// in component tests without a live register-storage, wallet, blueprint, or
// peer service.

package fakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
	"github.com/certen/validator-node/pkg/cryptoverify"
)

// RegisterStorage is an in-memory ports.RegisterStorage backed by a slice
// of confirmed dockets and a transaction index, per register.
type RegisterStorage struct {
	mu           sync.RWMutex
	dockets      map[string][]types.Docket
	transactions map[string]map[string]types.Transaction
}

func NewRegisterStorage() *RegisterStorage {
	return &RegisterStorage{
		dockets:      make(map[string][]types.Docket),
		transactions: make(map[string]map[string]types.Transaction),
	}
}

// Append adds a confirmed docket (and indexes its transactions) to the
// fake's backing store.
func (s *RegisterStorage) Append(docket types.Docket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dockets[docket.RegisterID] = append(s.dockets[docket.RegisterID], docket)
	if s.transactions[docket.RegisterID] == nil {
		s.transactions[docket.RegisterID] = make(map[string]types.Transaction)
	}
	for _, tx := range docket.Transactions {
		s.transactions[docket.RegisterID][tx.TxID] = tx
	}
}

func (s *RegisterStorage) ReadDocket(ctx context.Context, register string, number uint64) (*types.Docket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.dockets[register] {
		if d.DocketNumber == number {
			dCopy := d
			return &dCopy, nil
		}
	}
	return nil, nil
}

func (s *RegisterStorage) ReadLatestDocket(ctx context.Context, register string) (*types.Docket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dockets := s.dockets[register]
	if len(dockets) == 0 {
		return nil, nil
	}
	d := dockets[len(dockets)-1]
	return &d, nil
}

func (s *RegisterStorage) RegisterHeight(ctx context.Context, register string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.dockets[register])), nil
}

func (s *RegisterStorage) GetTransaction(ctx context.Context, register, txID string) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[register][txID]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (s *RegisterStorage) SuccessorsByPrevTxID(ctx context.Context, register, prevTxID string, page, size int) ([]types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []types.Transaction
	for _, tx := range s.transactions[register] {
		if tx.PreviousTxID == prevTxID {
			matches = append(matches, tx)
		}
	}
	return paginate(matches, page, size), nil
}

func (s *RegisterStorage) GetTransactions(ctx context.Context, register string, page, size int) ([]types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]types.Transaction, 0, len(s.transactions[register]))
	for _, tx := range s.transactions[register] {
		all = append(all, tx)
	}
	return paginate(all, page, size), nil
}

func paginate(items []types.Transaction, page, size int) []types.Transaction {
	if size <= 0 {
		return items
	}
	start := page * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Wallet is an in-memory ports.Wallet; it generates a real Ed25519 key pair
// per validator ID and signs/verifies with it.
type Wallet struct {
	mu      sync.Mutex
	wallets map[string]walletKeyPair
}

type walletKeyPair struct {
	walletID   string
	publicKey  []byte
	privateKey []byte
}

func NewWallet() *Wallet {
	return &Wallet{wallets: make(map[string]walletKeyPair)}
}

func (w *Wallet) CreateOrRetrieveSystemWallet(ctx context.Context, validatorID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if kp, ok := w.wallets[validatorID]; ok {
		return kp.walletID, nil
	}

	pub, priv, err := cryptoverify.GenerateKey(cryptoverify.AlgorithmEd25519)
	if err != nil {
		return "", err
	}
	walletID := "wallet-" + validatorID
	w.wallets[validatorID] = walletKeyPair{walletID: walletID, publicKey: pub, privateKey: priv}
	return walletID, nil
}

func (w *Wallet) Sign(ctx context.Context, walletID string, data []byte) (*ports.SignResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, kp := range w.wallets {
		if kp.walletID == walletID {
			sig, err := cryptoverify.Sign(cryptoverify.AlgorithmEd25519, kp.privateKey, data)
			if err != nil {
				return nil, err
			}
			return &ports.SignResult{
				Signature: sig,
				PublicKey: kp.publicKey,
				SignedBy:  walletID,
				Algorithm: types.AlgorithmEd25519,
			}, nil
		}
	}
	return nil, fmt.Errorf("unknown wallet: %s", walletID)
}

func (w *Wallet) Verify(ctx context.Context, publicKey, signature []byte, algorithm types.SignatureAlgorithm, data []byte) (bool, error) {
	return cryptoverify.Verify(cryptoverify.Algorithm(algorithm), publicKey, data, signature)
}

// BlueprintService is an in-memory ports.BlueprintService over a fixed map.
type BlueprintService struct {
	mu         sync.RWMutex
	blueprints map[string]ports.Blueprint
}

func NewBlueprintService() *BlueprintService {
	return &BlueprintService{blueprints: make(map[string]ports.Blueprint)}
}

func (b *BlueprintService) Put(bp ports.Blueprint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blueprints[bp.BlueprintID] = bp
}

func (b *BlueprintService) GetBlueprint(ctx context.Context, id string) (*ports.Blueprint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bp, ok := b.blueprints[id]
	if !ok {
		return nil, fmt.Errorf("blueprint %s not found", id)
	}
	return &bp, nil
}

// PeerService is an in-memory ports.PeerService that records published and
// broadcast dockets, reported behavior, and answers vote/heartbeat RPCs
// from an installed per-validator responder.
type PeerService struct {
	mu                sync.Mutex
	published         []string
	broadcasted       []string
	reportedBehaviors []ports.BehaviorKind
	voteResponders    map[string]func(docket []byte) (*ports.VoteResponse, error)
	validators         map[string][]types.ValidatorInfo
	heartbeatsSent    []string
}

func NewPeerService() *PeerService {
	return &PeerService{
		voteResponders: make(map[string]func(docket []byte) (*ports.VoteResponse, error)),
		validators:     make(map[string][]types.ValidatorInfo),
	}
}

func (p *PeerService) SetValidators(register string, validators []types.ValidatorInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validators[register] = validators
}

func (p *PeerService) SetVoteResponder(validatorID string, responder func(docket []byte) (*ports.VoteResponse, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voteResponders[validatorID] = responder
}

func (p *PeerService) PublishProposedDocket(ctx context.Context, register, docketID string, encoded []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, docketID)
	return nil
}

func (p *PeerService) BroadcastConfirmedDocket(ctx context.Context, register, docketID string, encoded []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasted = append(p.broadcasted, docketID)
	return nil
}

func (p *PeerService) QueryValidators(ctx context.Context, register string) ([]types.ValidatorInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validators[register], nil
}

func (p *PeerService) ReportBehavior(ctx context.Context, validatorID string, kind ports.BehaviorKind, detail string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportedBehaviors = append(p.reportedBehaviors, kind)
	return nil
}

func (p *PeerService) RequestVote(ctx context.Context, validatorID string, docket []byte) (*ports.VoteResponse, error) {
	p.mu.Lock()
	responder, ok := p.voteResponders[validatorID]
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no vote responder installed for validator %s", validatorID)
	}
	return responder(docket)
}

func (p *PeerService) SendHeartbeat(ctx context.Context, validatorID, senderID string, term uint64, load float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeatsSent = append(p.heartbeatsSent, validatorID)
	return nil
}

func (p *PeerService) HeartbeatsSent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.heartbeatsSent))
	copy(out, p.heartbeatsSent)
	return out
}

func (p *PeerService) BroadcastCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.broadcasted)
}

func (p *PeerService) ReportedBehaviors() []ports.BehaviorKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ports.BehaviorKind, len(p.reportedBehaviors))
	copy(out, p.reportedBehaviors)
	return out
}
