package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/metrics"
	"jointPacks/internal/model"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 60 * time.Second
)

// PollerConfig controls the open-and-await workflow.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    Clock
	Metrics  *metrics.Metrics
	// OnResolved runs after a reward is found, e.g. to refresh holdings and totals.
	OnResolved func(Status)
}

// Observer receives every state change of a session.
type Observer func(Status)

// Poller opens packs and waits for the matching RewardClaimed event.
type Poller struct {
	cfg      PollerConfig
	source   EventSource
	opener   Opener
	sessions *Sessions
	logger   *zap.Logger
}

// NewPoller builds a Poller. opener may be nil when only Await is used.
func NewPoller(cfg PollerConfig, source EventSource, opener Opener, sessions *Sessions, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if sessions == nil {
		sessions = NewSessions(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		cfg:      cfg,
		source:   source,
		opener:   opener,
		sessions: sessions,
		logger:   logger,
	}
}

// Sessions exposes the registry backing this poller.
func (p *Poller) Sessions() *Sessions {
	return p.sessions
}

// Begin reserves a session for (account, tokenID) without running it.
func (p *Poller) Begin(account, tokenID string) (*Session, error) {
	session, err := p.sessions.Begin(account, tokenID, p.cfg.Clock.Now())
	if err != nil {
		return nil, err
	}
	p.cfg.Metrics.SessionStarted()
	return session, nil
}

// Open reserves a session and runs it to a terminal state.
func (p *Poller) Open(ctx context.Context, account, tokenID string, observe Observer) (Status, error) {
	session, err := p.Begin(account, tokenID)
	if err != nil {
		return Status{}, err
	}
	return p.Run(ctx, session, observe)
}

// Run drives a session from opening to a terminal state. The session is
// released on every exit path.
func (p *Poller) Run(ctx context.Context, session *Session, observe Observer) (Status, error) {
	defer p.sessions.End(session)

	if p.opener == nil {
		return p.finish(session, StateFailed, 0, nil, &apperr.ConnectionError{Err: errors.New("no signer configured")}, observe)
	}
	if p.source == nil {
		return p.finish(session, StateFailed, 0, nil, &apperr.ConnectionError{Err: errors.New("no event source configured")}, observe)
	}

	tokenID := session.Status().TokenID
	p.transition(session, observe, func(s *Status) {
		s.State = StateOpening
		s.Message = fmt.Sprintf("Opening $JOINT Pack #%s...", tokenID)
	})

	receipt, err := p.opener.Open(ctx, tokenID)
	if err != nil {
		if ctx.Err() != nil {
			return p.finish(session, StateCancelled, 0, nil, ctx.Err(), observe)
		}
		var callErr *apperr.ContractCallError
		var connErr *apperr.ConnectionError
		if !errors.As(err, &callErr) && !errors.As(err, &connErr) {
			err = &apperr.ContractCallError{Method: "openLootBox", Err: err}
		}
		return p.finish(session, StateFailed, 0, nil, err, observe)
	}

	var fromBlock uint64
	if receipt.BlockNumber != nil {
		fromBlock = *receipt.BlockNumber
	} else {
		p.logger.Debug("open receipt without block number, looking up by tx", zap.String("tx", receipt.TxHash))
		fromBlock, err = p.opener.BlockNumberByTx(ctx, receipt.TxHash)
		if err != nil {
			if ctx.Err() != nil {
				return p.finish(session, StateCancelled, 0, nil, ctx.Err(), observe)
			}
			return p.finish(session, StateFailed, 0, nil, &apperr.QueryError{Op: "receipt block number", Err: err}, observe)
		}
	}

	session.update(p.cfg.Clock.Now(), func(s *Status) { s.TxHash = receipt.TxHash })
	return p.await(ctx, session, fromBlock, observe)
}

// Await skips the open call and polls for the reward of a pack opened at fromBlock.
func (p *Poller) Await(ctx context.Context, account, tokenID string, fromBlock uint64, observe Observer) (Status, error) {
	session, err := p.Begin(account, tokenID)
	if err != nil {
		return Status{}, err
	}
	defer p.sessions.End(session)

	if p.source == nil {
		return p.finish(session, StateFailed, 0, nil, &apperr.ConnectionError{Err: errors.New("no event source configured")}, observe)
	}
	return p.await(ctx, session, fromBlock, observe)
}

func (p *Poller) await(ctx context.Context, session *Session, fromBlock uint64, observe Observer) (Status, error) {
	status := p.transition(session, observe, func(s *Status) {
		s.State = StateAwaitingReward
		s.FromBlock = fromBlock
		s.Message = fmt.Sprintf("$JOINT Pack #%s opened, waiting for your reward...", s.TokenID)
	})

	query := RewardQuery{Account: status.Account, TokenID: status.TokenID, FromBlock: fromBlock}
	start := p.cfg.Clock.Now()
	polls := 0

	for {
		if err := p.cfg.Clock.Sleep(ctx, p.cfg.Interval); err != nil {
			return p.finish(session, StateCancelled, polls, nil, err, observe)
		}

		if elapsed := p.cfg.Clock.Now().Sub(start); elapsed >= p.cfg.Timeout {
			return p.finish(session, StateTimedOut, polls, nil, &apperr.TimeoutError{
				TokenID: query.TokenID,
				Polls:   polls,
				Budget:  p.cfg.Timeout.String(),
			}, observe)
		}

		polls++
		p.cfg.Metrics.PollQuery()
		events, err := p.source.PastRewardEvents(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return p.finish(session, StateCancelled, polls, nil, ctx.Err(), observe)
			}
			return p.finish(session, StateFailed, polls, nil, &apperr.QueryError{Op: "poll RewardClaimed", Err: err}, observe)
		}

		for _, event := range events {
			if query.Matches(event) {
				found := event
				return p.finish(session, StateResolved, polls, &found, nil, observe)
			}
		}

		session.update(p.cfg.Clock.Now(), func(s *Status) { s.Polls = polls })
		p.logger.Debug("reward not found yet",
			zap.String("account", query.Account),
			zap.String("token_id", query.TokenID),
			zap.Int("polls", polls),
		)
	}
}

func (p *Poller) transition(session *Session, observe Observer, fn func(*Status)) Status {
	status := session.update(p.cfg.Clock.Now(), fn)
	if observe != nil {
		observe(status)
	}
	return status
}

func (p *Poller) finish(session *Session, state State, polls int, found *model.RewardEvent, cause error, observe Observer) (Status, error) {
	status := p.transition(session, observe, func(s *Status) {
		s.State = state
		s.Polls = polls
		switch state {
		case StateResolved:
			s.Reward = found
			s.RewardEther = found.AmountWei
			if ether, err := FromWei(found.AmountWei); err == nil {
				s.RewardEther = ether
			}
			s.Message = fmt.Sprintf("You received %s $JOINT from Pack #%s!", s.RewardEther, s.TokenID)
		case StateTimedOut:
			s.Message = fmt.Sprintf("No reward for Pack #%s yet, check back later.", s.TokenID)
		default:
			s.Message = apperr.UserMessage(cause)
		}
		if cause != nil {
			s.Error = cause.Error()
		}
	})

	p.cfg.Metrics.SessionFinished(string(state), status.UpdatedAt.Sub(status.StartedAt))
	if cause != nil {
		p.cfg.Metrics.Error(apperr.Kind(cause))
	}

	fields := []zap.Field{
		zap.String("session", status.SessionID),
		zap.String("account", status.Account),
		zap.String("token_id", status.TokenID),
		zap.String("state", string(state)),
		zap.Int("polls", polls),
	}
	switch state {
	case StateResolved:
		p.logger.Info("reward found", append(fields, zap.String("amount_ether", status.RewardEther))...)
		if p.cfg.OnResolved != nil {
			p.cfg.OnResolved(status)
		}
	case StateCancelled:
		p.logger.Info("session cancelled", fields...)
	default:
		p.logger.Warn("session ended without reward", append(fields, zap.Error(cause))...)
	}

	return status, cause
}
