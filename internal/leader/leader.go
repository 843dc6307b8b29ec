// Copyright 2025 Certen Protocol
//
// LeaderElection rotates a register's proposer seat over its active
// validator order, tracking a monotonic term and failing over to the
// next validator in rotation when the current leader's heartbeat goes
// quiet.

package leader

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/events"
	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
)

// Config bounds failover sensitivity for one register's election.
type Config struct {
	LeaderTimeout            time.Duration
	MissedHeartbeatsThreshold int
	TickInterval             time.Duration
}

func DefaultConfig() Config {
	return Config{
		LeaderTimeout:             5 * time.Second,
		MissedHeartbeatsThreshold: 3,
		TickInterval:              time.Second,
	}
}

// State is a point-in-time snapshot of one register's election.
type State struct {
	CurrentLeaderID       string
	CurrentTerm           uint64
	LastHeartbeatReceived time.Time
	IsLeader              bool
}

// orderSource returns the rotation order for a register; satisfied by
// internal/registry.Registry.GetOrder.
type orderSource interface {
	GetOrder(ctx context.Context, register string) ([]types.ValidatorInfo, error)
}

// Election runs leader rotation and failover for a single register.
type Election struct {
	register string
	selfID   string
	order    orderSource
	peers    ports.PeerService
	bus      *events.Bus
	cfg      Config
	logger   *log.Logger

	mu               sync.Mutex
	currentLeaderID  string
	currentTerm      uint64
	lastHeartbeat    time.Time
	missedTicks      int
}

func New(register, selfID string, order orderSource, peers ports.PeerService, bus *events.Bus, cfg Config) *Election {
	return &Election{
		register: register,
		selfID:   selfID,
		order:    order,
		peers:    peers,
		bus:      bus,
		cfg:      cfg,
		logger:   log.New(log.Writer(), "[leader "+register+"] ", log.LstdFlags),
	}
}

// TriggerElection advances the term and selects the next leader by
// rotating through the register's validator order.
func (e *Election) TriggerElection(ctx context.Context) (State, error) {
	order, err := e.order.GetOrder(ctx, e.register)
	if err != nil {
		return State{}, err
	}

	e.mu.Lock()
	e.currentTerm++
	term := e.currentTerm

	var leader string
	if len(order) > 0 {
		leader = order[int(term)%len(order)].ValidatorID
	}
	e.currentLeaderID = leader
	e.lastHeartbeat = time.Now()
	e.missedTicks = 0
	isLeader := leader != "" && leader == e.selfID
	e.mu.Unlock()

	e.logger.Printf("election triggered: term=%d leader=%s", term, leader)
	if e.bus != nil {
		e.bus.EmitLeaderChanged(events.LeaderChanged{RegisterID: e.register, Term: term, LeaderID: leader, At: time.Now()})
	}
	return State{CurrentLeaderID: leader, CurrentTerm: term, LastHeartbeatReceived: e.lastHeartbeat, IsLeader: isLeader}, nil
}

// ProcessHeartbeat applies a received heartbeat from sender at senderTerm.
func (e *Election) ProcessHeartbeat(sender string, senderTerm uint64, load float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case senderTerm > e.currentTerm:
		e.currentTerm = senderTerm
		e.currentLeaderID = sender
		e.lastHeartbeat = time.Now()
		e.missedTicks = 0
		e.logger.Printf("adopting higher term: term=%d leader=%s", senderTerm, sender)
		if e.bus != nil {
			e.bus.EmitLeaderChanged(events.LeaderChanged{RegisterID: e.register, Term: senderTerm, LeaderID: sender, At: time.Now()})
		}
	case senderTerm == e.currentTerm && sender == e.currentLeaderID:
		e.lastHeartbeat = time.Now()
		e.missedTicks = 0
	default:
		// sender_term < term, or a stale/unrecognized leader at the
		// current term: ignored.
	}
}

// GetNextLeader returns the validator following current in order,
// wrapping to the first; an unrecognized current returns order[0].
func (e *Election) GetNextLeader(ctx context.Context, current string) (string, error) {
	order, err := e.order.GetOrder(ctx, e.register)
	if err != nil {
		return "", err
	}
	if len(order) == 0 {
		return "", nil
	}
	for i, v := range order {
		if v.ValidatorID == current {
			return order[(i+1)%len(order)].ValidatorID, nil
		}
	}
	return order[0].ValidatorID, nil
}

// SendHeartbeat broadcasts this validator's term and load to every other
// known validator, if and only if it is the current leader.
func (e *Election) SendHeartbeat(ctx context.Context, load float64) error {
	state := e.State()
	if !state.IsLeader {
		return nil
	}

	order, err := e.order.GetOrder(ctx, e.register)
	if err != nil {
		return err
	}
	for _, v := range order {
		if v.ValidatorID == e.selfID {
			continue
		}
		if err := e.peers.SendHeartbeat(ctx, v.ValidatorID, e.selfID, state.CurrentTerm, load); err != nil {
			e.logger.Printf("heartbeat to %s failed: %v", v.ValidatorID, err)
		}
	}
	return nil
}

// Tick advances the failover clock by one interval, triggering an
// election once MissedHeartbeatsThreshold consecutive ticks have elapsed
// without a fresh heartbeat from the current leader.
func (e *Election) Tick(ctx context.Context) (elected bool, state State, err error) {
	e.mu.Lock()
	since := time.Since(e.lastHeartbeat)
	missedThisTick := since >= e.cfg.LeaderTimeout
	if missedThisTick {
		e.missedTicks++
	} else {
		e.missedTicks = 0
	}
	shouldElect := e.missedTicks >= e.cfg.MissedHeartbeatsThreshold
	e.mu.Unlock()

	if !shouldElect {
		return false, e.State(), nil
	}

	newState, err := e.TriggerElection(ctx)
	return true, newState, err
}

// Run drives Tick on cfg.TickInterval until ctx is cancelled.
func (e *Election) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := e.Tick(ctx); err != nil {
				e.logger.Printf("tick failed: %v", err)
			}
		}
	}
}

// State returns the current election snapshot.
func (e *Election) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		CurrentLeaderID:       e.currentLeaderID,
		CurrentTerm:           e.currentTerm,
		LastHeartbeatReceived: e.lastHeartbeat,
		IsLeader:              e.currentLeaderID != "" && e.currentLeaderID == e.selfID,
	}
}

// LeaderForTerm returns the validator the rotation rule assigns to term,
// computed from the register's current validator order the same way
// TriggerElection does (order[term % len(order)]). Unlike the tracked
// current-term state, this answers for any term, including the
// adjacent terms Confirm tolerates under clock/heartbeat skew — an
// empty result only means the order could not be read or is empty.
func (e *Election) LeaderForTerm(term uint64) string {
	order, err := e.order.GetOrder(context.Background(), e.register)
	if err != nil || len(order) == 0 {
		return ""
	}
	return order[int(term)%len(order)].ValidatorID
}
