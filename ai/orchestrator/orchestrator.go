// Package orchestrator drives a single inbound utterance through the
// full pipeline: conversation lookup, routing, retrieval, prompting,
// completion, formatting, persistence, and the outbound post.
package orchestrator

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/ai/format"
	"github.com/crewmind/crewmind/ai/llm"
	"github.com/crewmind/crewmind/ai/metrics"
	"github.com/crewmind/crewmind/ai/prompt"
	"github.com/crewmind/crewmind/ai/retrieval"
	"github.com/crewmind/crewmind/ai/skill"
	"github.com/crewmind/crewmind/index"
	"github.com/crewmind/crewmind/plugin/teamchat"
	"github.com/crewmind/crewmind/store"
)

// Pipeline states, in order. Kept as strings for logging and metrics.
const (
	StateReceived          = "RECEIVED"
	StateClassified        = "CLASSIFIED"
	StateConversationReady = "CONVERSATION_READY"
	StateRouted            = "ROUTED"
	StateRetrieved         = "RETRIEVED"
	StatePrompted          = "PROMPTED"
	StateCompleted         = "COMPLETED"
	StateFormatted         = "FORMATTED"
	StatePersisted         = "PERSISTED"
	StatePosted            = "POSTED"
	StateDone              = "DONE"
)

// Timeouts. The request deadline is configurable; each external call
// gets its own tighter budget within it.
const (
	DefaultRequestDeadline = 25 * time.Second
	externalCallTimeout    = 10 * time.Second
	contextWindow          = 20
)

// Orchestrator binds the pipeline collaborators. All are injected at
// construction; tests supply fakes.
type Orchestrator struct {
	registry  *skill.Registry
	store     *store.Store
	engine    *retrieval.Engine
	completer llm.Completer
	sender    teamchat.Sender
	deadline  time.Duration
}

// New creates an orchestrator. deadline <= 0 selects the default.
func New(registry *skill.Registry, s *store.Store, engine *retrieval.Engine, completer llm.Completer, sender teamchat.Sender, deadline time.Duration) *Orchestrator {
	if deadline <= 0 {
		deadline = DefaultRequestDeadline
	}
	return &Orchestrator{
		registry:  registry,
		store:     s,
		engine:    engine,
		completer: completer,
		sender:    sender,
		deadline:  deadline,
	}
}

// Handle processes one classified inbound event end to end. It never
// returns an error: every failure past classification becomes a
// user-visible reply, per the error policy.
func (o *Orchestrator) Handle(parent context.Context, in *teamchat.Inbound) {
	ctx, cancel := context.WithTimeout(parent, o.deadline)
	defer cancel()

	// Correlates the log lines of one orchestration.
	requestID := uuid.NewString()
	state := StateClassified
	started := time.Now()
	slog.Debug("orchestrator: request started", "request_id", requestID, "user", in.User, "channel", in.Channel)

	reply, _, skillName, funcName, err := o.run(ctx, in, &state)
	status := "ok"
	if err != nil {
		status = "error"
		slog.Error("orchestrator: pipeline failed",
			"request_id", requestID, "state", state, "user", in.User, "channel", in.Channel, "error", err)
		reply = apologyFor(err)
	}
	metrics.RequestsTotal.WithLabelValues(skillName, funcName, status).Inc()
	metrics.StageDuration.WithLabelValues(StateDone).Observe(time.Since(started).Seconds())

	// The post runs on a fresh budget so a deadline blown in the
	// pipeline still lets the apology out.
	postCtx, postCancel := context.WithTimeout(parent, externalCallTimeout)
	defer postCancel()
	o.post(postCtx, in, reply)
}

// run executes the pipeline up to the formatted reply text. state
// tracks the last transition for error reporting.
func (o *Orchestrator) run(ctx context.Context, in *teamchat.Inbound, state *string) (string, *retrieval.Result, string, string, error) {
	// CONVERSATION_READY
	conv, history, prevQueries, persistable := o.prepareConversation(ctx, in)
	*state = StateConversationReady

	// ROUTED
	chosen, fn, err := o.registry.Route(in.Text)
	if err != nil {
		return "", nil, "", "", errors.Wrap(err, "route utterance")
	}
	*state = StateRouted
	slog.Info("orchestrator: routed",
		"skill", chosen.Name, "function", fn.Name, "user", in.User)

	var reply string
	var result *retrieval.Result

	switch {
	case fn.Handler != nil:
		reply, err = fn.Handler(ctx, &skill.Request{Utterance: in.Text, History: history})
		if err != nil {
			return "", nil, chosen.Name, fn.Name, errors.Wrap(err, "skill handler")
		}
		*state = StateCompleted

	default:
		// RETRIEVED (retrieval-aware functions only)
		contextSlot := ""
		if fn.RetrievalAware && o.engine != nil {
			degraded := false
			result, err = o.retrieve(ctx, in.Text, prevQueries)
			if err != nil {
				if !errors.Is(err, index.ErrUnavailable) {
					return "", nil, chosen.Name, fn.Name, errors.Wrap(err, "retrieval")
				}
				// Degraded: answer without retrieved knowledge.
				slog.Warn("orchestrator: retrieval unavailable, continuing without context", "error", err)
				result, degraded = nil, true
			}
			*state = StateRetrieved
			if result.Empty() && !degraded {
				reply = "I couldn't find any relevant information about that in the knowledge base. " +
					"Try rephrasing, or ask me something else."
				result = nil
				break
			}
			if !result.Empty() {
				contextSlot = result.Context
			}
		}

		// PROMPTED
		rendered, err := prompt.Format(fn.Template, map[string]string{
			"context":  contextSlot,
			"history":  history,
			"question": in.Text,
		})
		if err != nil {
			return "", nil, chosen.Name, fn.Name, errors.Wrap(err, "render prompt")
		}
		*state = StatePrompted

		// COMPLETED
		callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
		reply, err = o.completer.Complete(callCtx, []llm.Message{
			{Role: llm.RoleSystem, Content: rendered.System},
			{Role: llm.RoleUser, Content: rendered.User},
		})
		cancel()
		if err != nil {
			return "", nil, chosen.Name, fn.Name, err
		}
		*state = StateCompleted

		if !result.Empty() {
			reply = reply + "\n\n" + result.SourcesSection()
		}
	}

	// PERSISTED (best effort past this point; the reply still goes out)
	if persistable {
		o.persist(ctx, conv, in.Text, reply, result)
		*state = StatePersisted
	}
	return reply, result, chosen.Name, fn.Name, nil
}

// prepareConversation finds or creates the user's conversation and
// loads the recent context. Store failures retry once and then degrade
// to an empty context with persistence disabled for this request.
func (o *Orchestrator) prepareConversation(ctx context.Context, in *teamchat.Inbound) (conv *store.Conversation, history string, prevQueries []string, persistable bool) {
	load := func() (*store.Conversation, error) {
		convs, err := o.store.GetUserConversations(ctx, in.User, 1, 0)
		if err != nil {
			return nil, err
		}
		if len(convs) > 0 {
			return convs[0], nil
		}
		return o.store.CreateConversation(ctx, in.User, map[string]any{"channel": in.Channel})
	}

	conv, err := load()
	if err != nil {
		conv, err = load()
	}
	if err != nil {
		slog.Error("orchestrator: conversation store degraded, continuing without memory", "error", err)
		return nil, "", nil, false
	}

	strCtx, err := o.store.GetContext(ctx, conv.UID, contextWindow, store.ContextString)
	if err == nil {
		history = strCtx.Text
	}
	rawCtx, err := o.store.GetContext(ctx, conv.UID, contextWindow, store.ContextRaw)
	if err == nil {
		for _, m := range rawCtx.Messages {
			if m.Role == store.RoleUser {
				prevQueries = append(prevQueries, m.Content)
			}
		}
	}
	return conv, history, prevQueries, true
}

func (o *Orchestrator) retrieve(ctx context.Context, query string, prevQueries []string) (*retrieval.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, externalCallTimeout)
	defer cancel()
	started := time.Now()
	result, err := o.engine.Retrieve(callCtx, query, prevQueries)
	metrics.StageDuration.WithLabelValues(StateRetrieved).Observe(time.Since(started).Seconds())
	if err == nil {
		metrics.RetrievalChunks.Observe(float64(len(result.Chunks)))
	}
	return result, err
}

// persist appends the user/assistant pair. One retry per append, then
// the failure only logs; the reply is already decided.
func (o *Orchestrator) persist(ctx context.Context, conv *store.Conversation, userText, reply string, result *retrieval.Result) {
	appendMsg := func(role store.Role, content string, md map[string]any) {
		if _, err := o.store.AddMessage(ctx, conv.UID, role, content, md); err != nil {
			if _, err = o.store.AddMessage(ctx, conv.UID, role, content, md); err != nil {
				slog.Error("orchestrator: persist failed", "role", role, "uid", conv.UID, "error", err)
			}
		}
	}
	appendMsg(store.RoleUser, userText, nil)

	var md map[string]any
	if citations := result.CitationsMetadata(); citations != nil {
		md = map[string]any{"citations": citations}
	}
	appendMsg(store.RoleAssistant, reply, md)
}

// post delivers the reply. Rate limiting defers once with jitter;
// other failures retry once and then only log.
func (o *Orchestrator) post(ctx context.Context, in *teamchat.Inbound, reply string) {
	resp := format.Format(reply, true)

	send := func() error {
		if in.ChannelType == "im" {
			return o.sender.SendDirect(ctx, in.User, resp.Text, resp.Blocks)
		}
		return o.sender.Send(ctx, in.Channel, resp.Text, resp.Blocks)
	}

	err := send()
	if errors.Is(err, teamchat.ErrRateLimited) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(500+rand.Intn(1500)) * time.Millisecond):
		}
		if err = send(); errors.Is(err, teamchat.ErrRateLimited) {
			resp = format.Format("I'm being rate limited by the platform right now. Please try again in a moment.", true)
			err = send()
		}
	} else if err != nil {
		err = send()
	}
	if err != nil {
		// No channel left to speak through; log and stop.
		slog.Error("orchestrator: platform post failed", "channel", in.Channel, "error", err)
	}
}

// apologyFor maps a pipeline failure to the single user-visible reply.
func apologyFor(err error) string {
	var failed *llm.CompletionFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Sorry, that took too long to process. Please try again."
	case errors.As(err, &failed):
		if failed.Class == llm.FailureTransient {
			return "Sorry, I couldn't reach the language model just now (temporary error). Please try again."
		}
		return "Sorry, the language model rejected the request. Please try again or contact support."
	case errors.Is(err, prompt.ErrTemplateSlotMissing), errors.Is(err, prompt.ErrTemplateNotFound):
		return "Sorry, I couldn't prepare a response for that request: " + err.Error()
	default:
		return "Something went wrong while processing your message. Please try again or contact support."
	}
}
