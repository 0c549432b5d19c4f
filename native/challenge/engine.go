package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stele/core/events"
	"stele/core/state"
	"stele/observability/metrics"
)

var (
	errNilState        = errors.New("challenge engine: state not configured")
	errNotBootstrapped = errors.New("challenge engine: params not initialised")
)

// Engine runs the challenge state machine. Every mutating operation executes
// under one lock against a staged state transaction: the operation either
// commits all of its writes together or none of them, and events are emitted
// only after a successful commit.
type Engine struct {
	mu       sync.RWMutex
	state    *state.Manager
	oracle   PriceOracle
	treasury Treasury
	badges   BadgeIssuer
	emitter  events.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.ChallengeMetrics
	nowFn    func() time.Time
}

// NewEngine creates an engine over st that prices assets with oracle. The
// treasury must be configured before participants can join.
func NewEngine(st *state.Manager, oracle PriceOracle) *Engine {
	return &Engine{
		state:   st,
		oracle:  oracle,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("stele/native/challenge"),
		nowFn:   time.Now,
	}
}

// SetTreasury configures the funds-transfer collaborator.
func (e *Engine) SetTreasury(t Treasury) { e.treasury = t }

// SetBadgeIssuer configures the badge collaborator. When unset, badge
// authorizations are only recorded and emitted as events.
func (e *Engine) SetBadgeIssuer(b BadgeIssuer) { e.badges = b }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
// Emit is called with the engine lock held, so emitters must not call back
// into the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics attaches a metrics registry.
func (e *Engine) SetMetrics(m *metrics.ChallengeMetrics) { e.metrics = m }

// SetNowFunc overrides the clock. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn().Unix()
}

// Bootstrap stores the initial params. It is a no-op when params already
// exist so restarts keep administrative changes.
func (e *Engine) Bootstrap(params Params) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := params.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	var existing Params
	ok, err := e.state.KVGet(paramsKey, &existing)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	params.normalize()
	params.EntryFee = cloneBig(params.EntryFee)
	params.SeedAmount = cloneBig(params.SeedAmount)
	return e.state.KVPut(paramsKey, &params)
}

// Params returns the current engine params.
func (e *Engine) Params() (Params, error) {
	var out Params
	err := e.view(func(kv state.KV) error {
		params, err := loadParams(kv)
		if err != nil {
			return err
		}
		out = *params
		return nil
	})
	return out, err
}

// effects collects what an operation produced besides its staged writes.
type effects struct {
	events []events.Event
	undo   []func(context.Context) error
}

func (fx *effects) emit(evt events.Event) { fx.events = append(fx.events, evt) }

// onRollback registers a compensation for an external side effect that must
// be reversed if the staged writes fail to commit.
func (fx *effects) onRollback(fn func(context.Context) error) { fx.undo = append(fx.undo, fn) }

func (e *Engine) execute(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, tx *state.Tx, fx *effects) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ctx, span := e.tracer.Start(ctx, "challenge."+op, trace.WithAttributes(attrs...))
	defer span.End()
	started := time.Now()

	fx := &effects{}
	e.mu.Lock()
	tx := e.state.Begin()
	err := fn(ctx, tx, fx)
	if err != nil {
		tx.Discard()
	} else if commitErr := tx.Commit(); commitErr != nil {
		err = fmt.Errorf("challenge: commit %s: %w", op, commitErr)
		e.rollback(ctx, op, fx)
	} else {
		// Emitters observe events in commit order.
		for _, evt := range fx.events {
			e.emitter.Emit(evt)
		}
	}
	e.mu.Unlock()

	code := string(CodeOf(err))
	if err != nil && code == "" {
		code = "internal"
	}
	e.metrics.Observe(op, code, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("challenge.code", code))
		level := slog.LevelDebug
		switch Code(code) {
		case ErrOraclePriceUnavailable.Code, ErrFundsTransfer.Code, ErrBadgeIssuer.Code, "internal":
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "challenge operation rejected", "operation", op, "code", code, "error", err)
		return err
	}
	e.logger.Debug("challenge operation committed", "operation", op, "events", len(fx.events))
	return nil
}

func (e *Engine) rollback(ctx context.Context, op string, fx *effects) {
	for i := len(fx.undo) - 1; i >= 0; i-- {
		if err := fx.undo[i](ctx); err != nil {
			e.logger.Error("challenge compensation failed", "operation", op, "error", err)
		}
	}
}

func (e *Engine) view(fn func(kv state.KV) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(e.state)
}

func (e *Engine) authorize(kv state.KV, auth Authority) (*Params, error) {
	params, err := loadParams(kv)
	if err != nil {
		return nil, err
	}
	if auth.Caller == (common.Address{}) || auth.Caller != params.Admin {
		return nil, ErrUnauthorized
	}
	return params, nil
}

func loadParams(kv state.KV) (*Params, error) {
	var params Params
	ok, err := kv.KVGet(paramsKey, &params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotBootstrapped
	}
	params.normalize()
	return &params, nil
}

func loadChallenge(kv state.KV, id uint64) (*Challenge, error) {
	var c Challenge
	ok, err := kv.KVGet(challengeKey(id), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChallengeNotFound
	}
	c.normalize()
	return &c, nil
}

func loadParticipant(kv state.KV, id uint64, addr common.Address) (*Participant, error) {
	var p Participant
	ok, err := kv.KVGet(participantKey(id, addr), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		p = Participant{ChallengeID: id, Address: addr, Status: StatusNone}
	}
	p.normalize()
	return &p, nil
}

func loadLeaderboard(kv state.KV, id uint64) (*Leaderboard, error) {
	var lb Leaderboard
	if _, err := kv.KVGet(rankingKey(id), &lb); err != nil {
		return nil, err
	}
	lb.normalize()
	return &lb, nil
}

func loadInvestable(kv state.KV) (*InvestableSet, error) {
	var set InvestableSet
	if _, err := kv.KVGet(investableKey, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func challengeAttrs(id uint64, caller common.Address) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("challenge.id", int64(id)),
		attribute.String("challenge.caller", caller.Hex()),
	}
}
