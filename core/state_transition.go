package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tally/core/events"
	"tally/core/state"
	"tally/core/types"
	"tally/crypto"
	"tally/native/subscriptions"
	"tally/native/token"
	"tally/observability"
	"tally/storage"
)

var (
	ErrNonceMismatch      = errors.New("core: nonce mismatch")
	ErrUnknownInstruction = errors.New("core: unknown instruction")
)

// StateProcessor applies signed instructions to the ledger one at a time.
// Each instruction runs against its own journal; its writes and its nonce
// bump reach the database in one batch. A failed instruction still consumes
// its nonce but none of its other writes persist and its events are not
// published.
type StateProcessor struct {
	mu      sync.Mutex
	db      storage.Database
	tokens  *token.Engine
	subs    *subscriptions.Engine
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.LedgerMetrics
	now     func() time.Time
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*StateProcessor)

// WithEmitter sets the downstream sink for committed events.
func WithEmitter(emitter events.Emitter) ProcessorOption {
	return func(sp *StateProcessor) { sp.emitter = emitter }
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(sp *StateProcessor) { sp.logger = logger }
}

// WithClock sets the function used to timestamp instructions.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(sp *StateProcessor) { sp.now = clock }
}

// WithUpgradeAuthority sets the identity allowed to submit init_config.
func WithUpgradeAuthority(addr crypto.Address) ProcessorOption {
	return func(sp *StateProcessor) { sp.subs.SetUpgradeAuthority(addr) }
}

// NewStateProcessor constructs a processor over db.
func NewStateProcessor(db storage.Database, opts ...ProcessorOption) (*StateProcessor, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	sp := &StateProcessor{
		db:      db,
		tokens:  token.NewEngine(),
		subs:    subscriptions.NewEngine(),
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("tally/core"),
		metrics: observability.Ledger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(sp)
	}
	if sp.emitter == nil {
		sp.emitter = events.NoopEmitter{}
	}
	sp.subs.SetTokens(sp.tokens)
	sp.subs.SetNowFunc(func() int64 { return sp.now().Unix() })
	return sp, nil
}

// Reader returns a read-only view of committed state.
func (sp *StateProcessor) Reader() state.Reader {
	return state.NewJournal(sp.db)
}

// NextNonce reports the nonce the next instruction from addr must carry.
func (sp *StateProcessor) NextNonce(addr crypto.Address) (uint64, error) {
	return state.NewJournal(sp.db).Nonce(addr)
}

// ApplyTransaction executes tx and returns its receipt. An error is returned
// only when tx could not be admitted at all (bad signature, wrong nonce,
// storage failure); instruction failures are reported in the receipt.
func (sp *StateProcessor) ApplyTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: nil transaction")
	}
	start := sp.now()
	ctx, span := sp.tracer.Start(ctx, "ledger.apply_transaction",
		trace.WithAttributes(attribute.String("tx.type", string(tx.Type))))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, sp.reject(span, tx, "context", err)
	}
	signer, err := tx.From()
	if err != nil {
		return nil, sp.reject(span, tx, "signature", err)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, sp.reject(span, tx, "hash", err)
	}
	span.SetAttributes(attribute.String("tx.signer", signer.String()))

	sp.mu.Lock()
	defer sp.mu.Unlock()

	journal := state.NewJournal(sp.db)
	expected, err := journal.Nonce(signer)
	if err != nil {
		return nil, sp.reject(span, tx, "storage", err)
	}
	if tx.Nonce != expected {
		return nil, sp.reject(span, tx, "nonce",
			fmt.Errorf("%w: got %d, expected %d", ErrNonceMismatch, tx.Nonce, expected))
	}

	buffer := &events.Buffer{}
	sp.tokens.SetState(journal)
	sp.tokens.SetEmitter(buffer)
	sp.subs.SetState(journal)
	sp.subs.SetEmitter(buffer)

	execErr := sp.handleInstruction(signer, tx)
	receipt := &types.Receipt{
		ID:      uuid.NewString(),
		TxHash:  hex.EncodeToString(hash),
		Type:    tx.Type,
		Signer:  signer,
		Success: execErr == nil,
		Events:  buffer.Wire(),
	}
	if execErr != nil {
		journal.Discard()
		receipt.Code = errorCode(execErr)
		receipt.Error = execErr.Error()
	}
	if err := journal.SetNonce(signer, expected+1); err != nil {
		return nil, sp.reject(span, tx, "storage", err)
	}
	if err := journal.Commit(); err != nil {
		return nil, sp.reject(span, tx, "storage", err)
	}

	elapsed := sp.now().Sub(start)
	sp.metrics.Observe(string(tx.Type), receipt.Code, elapsed)
	if execErr != nil {
		buffer.Reset()
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		sp.logger.Warn("instruction failed",
			slog.String("type", string(tx.Type)),
			slog.String("signer", signer.String()),
			slog.String("receipt", receipt.ID),
			slog.Uint64("code", uint64(receipt.Code)),
			slog.String("error", execErr.Error()))
		return receipt, nil
	}
	buffer.Flush(sp.emitter)
	span.SetStatus(codes.Ok, "applied")
	sp.logger.Info("instruction applied",
		slog.String("type", string(tx.Type)),
		slog.String("signer", signer.String()),
		slog.String("receipt", receipt.ID),
		slog.Int("events", len(receipt.Events)),
		slog.Duration("elapsed", elapsed))
	return receipt, nil
}

func (sp *StateProcessor) reject(span trace.Span, tx *types.Transaction, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	sp.metrics.RecordRejected(reason)
	sp.logger.Warn("transaction rejected",
		slog.String("type", string(tx.Type)),
		slog.Uint64("nonce", tx.Nonce),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	return err
}

// errorCode prefers the subscriptions taxonomy, then the token one.
func errorCode(err error) uint32 {
	code := subscriptions.ErrorCode(err)
	if code != subscriptions.ErrorCodeUnknown {
		return code
	}
	if tokenCode := token.ErrorCode(err); tokenCode != 0 {
		return tokenCode
	}
	return code
}
