// Copyright 2025 Certen Protocol
//
// SignatureCollector fans a proposed docket's request_vote RPC out to
// every other active validator in parallel, tallying approvals and
// rejections as responses arrive and terminating early once the result
// is no longer in doubt.

package sigcollect

import (
	"context"
	"sync"
	"time"

	"github.com/certen/validator-node/internal/ports"
	"github.com/certen/validator-node/internal/types"
)

// Config bounds how long a collection round waits for responses.
type Config struct {
	VoteTimeout time.Duration
}

// Result is the outcome of one signature-collection round.
type Result struct {
	Signatures        []types.ConsensusVote
	ThresholdMet      bool
	TimedOut          bool
	TotalValidators   int
	ResponsesReceived int
	Approvals         int
	Rejections        int
	NonResponders     []string
	RejectionDetails  map[string]string
	Duration          time.Duration
}

// Collector runs signature-collection rounds against a register's
// validator set.
type Collector struct {
	peers  ports.PeerService
	wallet ports.Wallet
	cfg    Config
}

func New(peers ports.PeerService, wallet ports.Wallet, cfg Config) *Collector {
	return &Collector{peers: peers, wallet: wallet, cfg: cfg}
}

type voteOutcome struct {
	validatorID string
	response    *ports.VoteResponse
	err         error
}

// Collect gathers votes on docket from every Active validator other than
// the proposer, who is credited an implicit Approve vote over proposerSig.
func (c *Collector) Collect(ctx context.Context, docket *types.Docket, validators []types.ValidatorInfo, proposerID string, proposerSig types.Signature) *Result {
	start := time.Now()

	others := make([]types.ValidatorInfo, 0, len(validators))
	for _, v := range validators {
		if v.ValidatorID != proposerID && v.Status == types.ValidatorActive {
			others = append(others, v)
		}
	}
	total := len(others) + 1

	result := &Result{
		TotalValidators:  total,
		RejectionDetails: make(map[string]string),
	}
	result.Signatures = append(result.Signatures, types.ConsensusVote{
		DocketID:           docket.DocketID,
		ValidatorID:        proposerID,
		Decision:           types.VoteApprove,
		VotedAt:            start,
		DocketHash:         docket.DocketHash,
		ValidatorSignature: proposerSig,
		IsInitiator:        true,
	})
	result.Approvals = 1

	if len(others) == 0 {
		result.ThresholdMet = result.Approvals > total/2
		result.Duration = time.Since(start)
		return result
	}

	roundCtx, cancel := context.WithTimeout(ctx, c.cfg.VoteTimeout)
	defer cancel()

	outcomes := make(chan voteOutcome, len(others))
	var wg sync.WaitGroup
	for _, v := range others {
		wg.Add(1)
		go func(validatorID string) {
			defer wg.Done()
			resp, err := c.peers.RequestVote(roundCtx, validatorID, []byte(docket.DocketHash))
			outcomes <- voteOutcome{validatorID: validatorID, response: resp, err: err}
		}(v.ValidatorID)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	pending := make(map[string]bool, len(others))
	for _, v := range others {
		pending[v.ValidatorID] = true
	}

	for len(pending) > 0 {
		select {
		case outcome, ok := <-outcomes:
			if !ok {
				pending = map[string]bool{}
				continue
			}
			delete(pending, outcome.validatorID)
			result.ResponsesReceived++

			if outcome.err != nil || outcome.response == nil {
				continue
			}
			c.applyVote(result, docket, *outcome.response)

			if c.terminatedEarly(result, total, len(pending)) {
				pending = map[string]bool{}
			}
		case <-roundCtx.Done():
			result.TimedOut = true
			pending = map[string]bool{}
		}
	}

	for id := range pending {
		result.NonResponders = append(result.NonResponders, id)
	}
	for _, v := range others {
		if !containsVote(result.Signatures, v.ValidatorID) && !containsString(result.NonResponders, v.ValidatorID) {
			result.NonResponders = append(result.NonResponders, v.ValidatorID)
		}
	}

	result.ThresholdMet = result.Approvals > total/2
	result.Duration = time.Since(start)
	return result
}

func (c *Collector) applyVote(result *Result, docket *types.Docket, resp ports.VoteResponse) {
	valid, err := c.wallet.Verify(context.Background(), resp.Signature.PublicKey, resp.Signature.SignatureValue, resp.Signature.Algorithm, []byte(docket.DocketHash))
	if err != nil || !valid {
		// an unverifiable signature counts neither as approval nor
		// rejection; the validator is treated as a non-responder.
		return
	}

	vote := types.ConsensusVote{
		DocketID:           docket.DocketID,
		ValidatorID:        resp.ValidatorID,
		Decision:           resp.Decision,
		VotedAt:            time.Now(),
		DocketHash:         docket.DocketHash,
		ValidatorSignature: resp.Signature,
		RejectionReason:    resp.Reason,
	}
	result.Signatures = append(result.Signatures, vote)

	if resp.Decision == types.VoteApprove {
		result.Approvals++
	} else {
		result.Rejections++
		result.RejectionDetails[resp.ValidatorID] = resp.Reason
	}
}

// terminatedEarly reports whether the round can stop before every
// response arrives: a strict majority of approvals is already locked in,
// or enough rejections have landed that approval is mathematically
// unreachable even if every still-pending validator approves.
func (c *Collector) terminatedEarly(result *Result, total, stillPending int) bool {
	if result.Approvals > total/2 {
		return true
	}
	bestCaseApprovals := result.Approvals + stillPending
	if bestCaseApprovals <= total/2 {
		return true
	}
	return stillPending == 0
}

func containsVote(votes []types.ConsensusVote, validatorID string) bool {
	for _, v := range votes {
		if v.ValidatorID == validatorID {
			return true
		}
	}
	return false
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
