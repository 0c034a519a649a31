// Package turn implements the turn-taking loop at the heart of a synthetic
// call: given a role, a persona, a conference and optionally captured speech,
// it decides whether to speak an introduction, keep listening, or produce a
// reply, and emits the next voice instruction.
//
// Step never returns an error. A callback that receives no instruction
// leaves the call in dead air, so every failure inside a turn degrades to a
// safe spoken fallback instead.
package turn

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/parleylabs/parley/completion"
	"github.com/parleylabs/parley/history"
	"github.com/parleylabs/parley/logger"
	"github.com/parleylabs/parley/metrics"
	"github.com/parleylabs/parley/persona"
	"github.com/parleylabs/parley/ratelimit"
	"github.com/parleylabs/parley/resilience"
	"github.com/parleylabs/parley/statestore"
	"github.com/parleylabs/parley/telephony"
	"github.com/parleylabs/parley/types"
)

// Webhook paths the engine redirects the call loop through.
const (
	ListenPath  = "/webhooks/turn/listen"
	RespondPath = "/webhooks/turn/respond"
)

// Spoken fallback texts.
const (
	apologyText = "I'm sorry, I'm having a little trouble right now. Could you say that again?"
	limitText   = "I'm sorry, this service has reached its daily usage limit. Please try again tomorrow. Goodbye."
)

// DefaultDailyLimit is the default daily turn ceiling.
const DefaultDailyLimit = 1000

// Input carries one transition of the turn state machine.
type Input struct {
	Role           string
	Persona        string
	ConferenceID   string
	IsFirstTurn    bool
	CapturedSpeech string
}

// Engine drives the turn-taking state machine for every webhook callback.
type Engine struct {
	store     statestore.Store
	limiter   ratelimit.Limiter
	completer completion.Client
	personas  *persona.Cache
	sanitizer *history.Sanitizer
	breaker   *resilience.Breaker
	retry     resilience.RetryConfig

	dailyLimit      int64
	conversationTTL time.Duration
	now             func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSanitizer overrides the default history sanitizer.
func WithSanitizer(s *history.Sanitizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.sanitizer = s
		}
	}
}

// WithBreaker sets the circuit breaker guarding completion calls.
func WithBreaker(b *resilience.Breaker) Option {
	return func(e *Engine) {
		if b != nil {
			e.breaker = b
		}
	}
}

// WithRetryConfig sets the retry policy for completion calls.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithDailyLimit sets the daily turn ceiling. Default is DefaultDailyLimit.
func WithDailyLimit(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.dailyLimit = n
		}
	}
}

// WithConversationTTL sets the TTL applied on history writes. Zero lets the
// store default apply.
func WithConversationTTL(d time.Duration) Option {
	return func(e *Engine) { e.conversationTTL = d }
}

// WithClock overrides the time source used for rate-limit day keys.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a turn engine over the given dependencies.
func NewEngine(store statestore.Store, limiter ratelimit.Limiter, completer completion.Client, personas *persona.Cache, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		limiter:    limiter,
		completer:  completer,
		personas:   personas,
		sanitizer:  history.NewSanitizer(),
		breaker:    resilience.NewBreaker("completion"),
		dailyLimit: DefaultDailyLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step runs one transition of the state machine and returns the next voice
// instruction. It never returns an error.
func (e *Engine) Step(ctx context.Context, in Input) telephony.Instruction {
	if in.Role == persona.RoleAgent && in.IsFirstTurn {
		return e.agentIntro(in)
	}

	speech := e.sanitizer.SanitizeUserMessage(in.CapturedSpeech)
	if speech == "" {
		return telephony.Instruction{}.Listen(respondURL(in))
	}

	return e.respond(ctx, in, speech)
}

// agentIntro handles the agent's first turn: speak the persona introduction
// and hand the loop to the listen endpoint without capturing speech.
func (e *Engine) agentIntro(in Input) telephony.Instruction {
	p, err := e.personas.Get(in.Persona)
	if err != nil {
		logger.Error("failed to load persona for introduction",
			"persona", in.Persona, "conference_id", in.ConferenceID, "error", err)
		metrics.RecordTurn(in.Role, metrics.TurnFallback)
		return telephony.Instruction{}.Say(apologyText).Redirect(listenURL(in, false))
	}

	logger.Turn(in.Role, in.ConferenceID, 0, "phase", "intro")
	metrics.RecordTurn(in.Role, metrics.TurnOK)
	return telephony.Instruction{}.Say(p.Introduction).Redirect(listenURL(in, false))
}

// respond handles a captured utterance: rate-limit check, history merge,
// completion call, persistence, and the reply instruction.
func (e *Engine) respond(ctx context.Context, in Input, speech string) telephony.Instruction {
	if instr, limited := e.checkLimit(ctx, in); limited {
		return instr
	}

	p, err := e.personas.Get(in.Persona)
	if err != nil {
		logger.Error("failed to load persona",
			"persona", in.Persona, "conference_id", in.ConferenceID, "error", err)
		return e.apology(in)
	}

	// Read failures fall back to a fresh conversation.
	stored, err := e.store.Get(ctx, in.ConferenceID)
	if err != nil {
		logger.Warn("failed to read conversation history, starting fresh",
			"conference_id", in.ConferenceID, "error", err)
		stored = nil
	}

	// Persisted history carries user/assistant messages only; the persona
	// system prompt is injected per-request below.
	hist := e.sanitizer.Sanitize(stored, false)
	hist = append(hist, types.User(speech))

	prompt := append([]types.Message{types.System(p.SystemPrompt)}, hist...)
	if err := e.sanitizer.ValidateForCompletion(prompt); err != nil {
		logger.Error("history failed pre-completion validation",
			"conference_id", in.ConferenceID, "error", err)
		return e.apology(in)
	}

	reply, err := e.complete(ctx, prompt)
	if err != nil {
		logger.Error("completion failed after retries",
			"conference_id", in.ConferenceID, "breaker_state", e.breaker.State(), "error", err)
		return e.apology(in)
	}

	hist = append(hist, types.Assistant(reply))

	// Best-effort persistence: the live call is the source of truth.
	if err := e.store.Put(ctx, in.ConferenceID, hist, e.conversationTTL); err != nil {
		logger.Warn("failed to persist conversation history",
			"conference_id", in.ConferenceID, "error", err)
	}

	logger.Turn(in.Role, in.ConferenceID, len(hist), "phase", "respond")
	metrics.RecordTurn(in.Role, metrics.TurnOK)
	return telephony.Instruction{}.Say(reply).Redirect(listenURL(in, false))
}

// checkLimit enforces the daily turn ceiling. Limiter errors fail open: an
// unreachable counter store must not kill the conversation.
func (e *Engine) checkLimit(ctx context.Context, in Input) (telephony.Instruction, bool) {
	res, err := e.limiter.CheckAndIncrement(ctx, e.now(), e.dailyLimit)
	if err != nil {
		logger.Warn("rate limiter unavailable, allowing turn",
			"conference_id", in.ConferenceID, "error", err)
		return telephony.Instruction{}, false
	}
	if res.Allowed {
		return telephony.Instruction{}, false
	}

	logger.Warn("daily turn limit exceeded",
		"conference_id", in.ConferenceID, "count", res.CurrentCount,
		"limit", res.Limit, "resets_at", res.ResetsAt)
	metrics.RecordRateLimitRejection()
	metrics.RecordTurn(in.Role, metrics.TurnLimited)
	return telephony.Instruction{}.Say(limitText).Hangup(), true
}

// complete calls the completion service through the breaker, with retries
// inside each admitted call.
func (e *Engine) complete(ctx context.Context, prompt []types.Message) (string, error) {
	var reply string
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, e.retry, func(ctx context.Context) error {
			out, err := e.completer.Complete(ctx, prompt)
			if err != nil {
				return err
			}
			reply = out
			return nil
		})
	}, nil)
	metrics.RecordBreakerState(e.breaker.Name(), breakerStateValue(e.breaker.State()))
	return reply, err
}

// apology emits the spoken fallback that keeps the loop alive after any
// failure inside a responding turn.
func (e *Engine) apology(in Input) telephony.Instruction {
	metrics.RecordTurn(in.Role, metrics.TurnFallback)
	return telephony.Instruction{}.Say(apologyText).Redirect(listenURL(in, false))
}

func breakerStateValue(s resilience.BreakerState) float64 {
	switch s {
	case resilience.StateOpen:
		return 1
	case resilience.StateHalfOpen:
		return 2
	}
	return 0
}

// listenURL builds the listen endpoint URL carrying the loop parameters.
func listenURL(in Input, firstTurn bool) string {
	q := url.Values{}
	q.Set("role", in.Role)
	q.Set("persona", in.Persona)
	q.Set("conferenceId", in.ConferenceID)
	q.Set("isFirstTurn", strconv.FormatBool(firstTurn))
	return ListenPath + "?" + q.Encode()
}

// respondURL builds the respond endpoint URL speech capture posts back to.
func respondURL(in Input) string {
	q := url.Values{}
	q.Set("role", in.Role)
	q.Set("persona", in.Persona)
	q.Set("conferenceId", in.ConferenceID)
	return RespondPath + "?" + q.Encode()
}
