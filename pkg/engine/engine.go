// Package engine implements the synchronization engine: the single component
// that mutates the file store and decides which sessions hear about it.
//
// Transports decode client frames into protocol.Operation values and hand
// them to Engine.Handle together with the originating session. The engine
// validates names, applies the operation to the store, and routes the
// resulting messages through the session registry:
//
//	Operation  Reply to origin   Broadcast to others
//	---------  ----------------  -------------------------------------
//	List       file-list         -
//	Get        file-content      -
//	Edit       -                 file-updated
//	Create     file-created      file-created (broadcast_structural)
//	Rename     file-renamed      file-renamed (broadcast_structural)
//	Delete     file-deleted      file-deleted (broadcast_structural)
//
// Failed preconditions are silent unless ReportErrors is set; I/O failures
// are always reported to the origin.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittosync/internal/logger"
	"github.com/marmos91/dittosync/pkg/metrics"
	"github.com/marmos91/dittosync/pkg/protocol"
	"github.com/marmos91/dittosync/pkg/session"
	"github.com/marmos91/dittosync/pkg/store"
)

// DefaultTextSuffix is the suffix List filters on when none is configured.
const DefaultTextSuffix = ".txt"

// ioFailureMessage is the text sent to clients for I/O failures. The
// underlying error is logged, not exposed.
const ioFailureMessage = "internal storage error"

// Config controls engine behaviour.
type Config struct {
	// TextSuffix restricts List to names ending with it.
	TextSuffix string `mapstructure:"text_suffix" validate:"required,startswith=." yaml:"text_suffix"`

	// ReportErrors sends an error message to the origin for precondition
	// failures (not found, already exists, invalid name).
	ReportErrors bool `mapstructure:"report_errors" yaml:"report_errors"`

	// BroadcastStructural also broadcasts create, rename and delete
	// confirmations to the other sessions.
	BroadcastStructural bool `mapstructure:"broadcast_structural" yaml:"broadcast_structural"`

	// QueueSize is the outbox capacity of each session.
	QueueSize int `mapstructure:"queue_size" validate:"min=0" yaml:"queue_size"`
}

// Engine applies operations to the store and notifies sessions.
//
// Thread safety:
// Handle serializes all operations under one mutex, so handlers run to
// completion without interleaving and store state transitions are totally
// ordered. Messages are enqueued while the mutex is held, which keeps each
// recipient's view in the same order as the store. The mutex is held across
// store I/O too, so a slow backend call delays every session; in return the
// stores' check-then-act sequences never interleave.
type Engine struct {
	mu sync.Mutex

	store    store.Store
	sessions *session.Registry
	config   Config
	metrics  metrics.SyncMetrics
}

// New creates an engine over st, routing messages through sessions.
// m may be nil.
func New(st store.Store, sessions *session.Registry, cfg Config, m metrics.SyncMetrics) *Engine {
	if cfg.TextSuffix == "" {
		cfg.TextSuffix = DefaultTextSuffix
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = session.DefaultQueueSize
	}
	return &Engine{
		store:    st,
		sessions: sessions,
		config:   cfg,
		metrics:  metrics.OrNoop(m),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Sessions returns the registry the engine routes through.
func (e *Engine) Sessions() *session.Registry {
	return e.sessions
}

// Store returns the underlying file store.
func (e *Engine) Store() store.Store {
	return e.store
}

// Connect creates and registers a session for a new connection.
func (e *Engine) Connect(transport, remoteAddr string) *session.Session {
	s := session.New(transport, remoteAddr, e.config.QueueSize)
	e.sessions.Register(s)
	return s
}

// Disconnect unregisters and closes a session. Idempotent.
func (e *Engine) Disconnect(s *session.Session) {
	e.sessions.Unregister(s)
	s.Close()
}

// result is what an individual handler produces. The dispatcher decides
// which of the messages are actually sent.
type result struct {
	outcome Outcome

	// reply goes to the origin on success.
	reply protocol.Message

	// notice goes to every other session on success, subject to the
	// structural broadcast setting for non-edit operations.
	notice protocol.Message
}

// Handle applies op on behalf of origin and sends the resulting messages.
//
// origin may be nil for operations submitted outside any session; replies
// are then discarded. The context is used for store calls but cancellation
// does not abort an operation once it has started.
func (e *Engine) Handle(ctx context.Context, origin *session.Session, op protocol.Operation) Outcome {
	start := time.Now()
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	var res result
	switch o := op.(type) {
	case protocol.ListFiles:
		res = e.handleList(ctx)
	case protocol.GetFile:
		res = e.handleGet(ctx, o)
	case protocol.EditFile:
		res = e.handleEdit(ctx, o)
	case protocol.CreateFile:
		res = e.handleCreate(ctx, o)
	case protocol.RenameFile:
		res = e.handleRename(ctx, o)
	case protocol.DeleteFile:
		res = e.handleDelete(ctx, o)
	default:
		res = result{outcome: Outcome{
			Status: StatusBadRequest,
			Err:    fmt.Errorf("%w: %T", protocol.ErrUnknownType, op),
		}}
	}

	e.dispatch(origin, op, res)

	opName := "unknown"
	if op != nil {
		opName = string(op.Type())
	}
	e.metrics.RecordOperation(opName, res.outcome.Status.String(), time.Since(start))

	return res.outcome
}

// HandleFrame decodes a raw client frame and handles it. Frames that cannot
// be decoded are answered with a bad_request error; the connection stays up.
func (e *Engine) HandleFrame(ctx context.Context, origin *session.Session, frame []byte) Outcome {
	op, typ, err := protocol.DecodeOperation(frame)
	if err != nil {
		e.ReportBadRequest(origin, typ, err)
		return Outcome{Status: StatusBadRequest, Err: err}
	}
	return e.Handle(ctx, origin, op)
}

// ReportBadRequest answers a frame that could not be decoded.
func (e *Engine) ReportBadRequest(origin *session.Session, typ protocol.MessageType, err error) {
	logger.Warn("Rejected malformed message from %s: type=%q error=%v", sessionLabel(origin), typ, err)
	e.metrics.RecordOperation(badRequestLabel(typ), StatusBadRequest.String(), 0)

	if origin == nil {
		return
	}
	e.sessions.SendTo(origin, protocol.Error{
		Operation: typ,
		Code:      protocol.CodeBadRequest,
		Message:   err.Error(),
	})
}

// dispatch routes a handler result to the origin and the other sessions.
func (e *Engine) dispatch(origin *session.Session, op protocol.Operation, res result) {
	if !res.outcome.OK() {
		e.reportFailure(origin, op, res.outcome)
		return
	}

	if res.reply != nil && origin != nil {
		e.sessions.SendTo(origin, res.reply)
	}

	if res.notice == nil {
		return
	}
	if _, isEdit := op.(protocol.EditFile); isEdit || e.config.BroadcastStructural {
		e.sessions.BroadcastExcept(origin, res.notice)
	}
}

func (e *Engine) reportFailure(origin *session.Session, op protocol.Operation, out Outcome) {
	var typ protocol.MessageType
	var target string
	if op != nil {
		typ = op.Type()
		target = protocol.Target(op)
	}

	if out.Status.Expected() {
		logger.Debug("%s rejected: file='%s' session=%s status=%s error=%v",
			strings.ToUpper(string(typ)), target, sessionLabel(origin), out.Status, out.Err)
		if !e.config.ReportErrors || origin == nil {
			return
		}
		e.sessions.SendTo(origin, protocol.Error{
			Operation: typ,
			File:      target,
			Code:      out.Status.Code(),
			Message:   errorText(out.Err),
		})
		return
	}

	logger.Error("%s failed: file='%s' session=%s error=%v",
		strings.ToUpper(string(typ)), target, sessionLabel(origin), out.Err)
	if origin == nil {
		return
	}
	e.sessions.SendTo(origin, protocol.Error{
		Operation: typ,
		File:      target,
		Code:      protocol.CodeIOFailure,
		Message:   ioFailureMessage,
	})
}

func sessionLabel(s *session.Session) string {
	if s == nil {
		return "-"
	}
	return s.String()
}

func badRequestLabel(typ protocol.MessageType) string {
	if typ == "" {
		return "unknown"
	}
	return string(typ)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// validateNames runs store.ValidateName over every name, returning the
// first failure as an InvalidName outcome.
func validateNames(names ...string) (Outcome, bool) {
	for _, name := range names {
		if err := store.ValidateName(name); err != nil {
			return Outcome{Status: StatusInvalidName, Err: err}, false
		}
	}
	return ok(), true
}
