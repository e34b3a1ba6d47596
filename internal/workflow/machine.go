package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/session"
	"github.com/omnihear/omnihear/internal/utils"
)

// Dispatch is the fully parameterized request produced when a workflow
// completes its parameter sequence. Session is a snapshot: the payload and
// version token it carries stay attributed to this dispatch even if the
// user uploads new audio while it is in flight.
type Dispatch struct {
	UserID         string
	Mode           models.ModeSpec
	Tier           models.Tier
	SourceLanguage string
	TargetLanguage string
	Session        *models.AudioSession
}

// Reply tells the transport what happened and what to ask next. Dispatch is
// non-nil exactly when the event completed the mode's parameter sequence.
type Reply struct {
	Step     models.Step
	Dispatch *Dispatch
}

// Machine drives the per-user parameter-gathering dialogue:
//
//	AwaitingAudio → AwaitingMode → [AwaitingSourceLanguage → AwaitingTargetLanguage | AwaitingOutputLanguage] → Dispatch → AwaitingMode
//
// Events for one user are serialized on that user's lock; different users
// never contend.
type Machine struct {
	sessions session.Store
	log      *logrus.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]*models.WorkflowState
}

func NewMachine(sessions session.Store, log *logrus.Logger) *Machine {
	if log == nil {
		log = logrus.New()
	}
	return &Machine{
		sessions: sessions,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
		states:   make(map[string]*models.WorkflowState),
	}
}

func (m *Machine) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

func (m *Machine) getState(userID string) *models.WorkflowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[userID]
}

func (m *Machine) setState(userID string, st *models.WorkflowState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st == nil {
		delete(m.states, userID)
		return
	}
	st.UpdatedAt = time.Now().UTC()
	m.states[userID] = st
}

// NotifyUpload resets the dialogue after a new (or replacing) audio upload:
// any half-gathered parameters belong to the superseded clip.
func (m *Machine) NotifyUpload(userID string) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	m.setState(userID, &models.WorkflowState{UserID: userID, Step: models.StepAwaitingMode})
}

// Complete returns the dialogue to mode selection once a dispatch finishes.
// The audio session is retained for repeated dispatches on the same clip.
func (m *Machine) Complete(userID string) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	if st := m.getState(userID); st != nil && st.Step == models.StepDispatching {
		m.setState(userID, &models.WorkflowState{UserID: userID, Step: models.StepAwaitingMode})
	}
}

// State returns the user's current step for acknowledgement rendering. It
// takes the user lock so a concurrent event application never exposes a
// half-mutated state.
func (m *Machine) State(userID string) models.Step {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return m.stepLocked(userID)
}

// Apply feeds one selection event through the machine. A mode/language/back
// event arriving with no live audio session yields SESSION_EXPIRED, drops
// the dialogue, and touches no cascade.
func (m *Machine) Apply(ctx context.Context, userID string, ev Event) (Reply, error) {
	const op = "Workflow.Apply"

	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	switch ev.Action {
	case ActionClear:
		_ = m.sessions.Clear(ctx, userID)
		m.setState(userID, nil)
		m.log.WithField("user_id", userID).Info("workflow cleared")
		return Reply{Step: models.StepAwaitingAudio}, nil

	case ActionBack:
		if _, err := m.sessions.Get(ctx, userID); err != nil {
			m.setState(userID, nil)
			return Reply{Step: models.StepAwaitingAudio}, utils.E(utils.CodeSessionExpired, op, "audio session expired, upload again", nil)
		}
		m.setState(userID, &models.WorkflowState{UserID: userID, Step: models.StepAwaitingMode})
		return Reply{Step: models.StepAwaitingMode}, nil

	case ActionMode:
		return m.applyMode(ctx, userID, ev)

	case ActionTier:
		return m.applyTier(userID, ev)

	case ActionLanguage:
		return m.applyLanguage(ctx, userID, ev)

	default:
		return Reply{Step: m.stepLocked(userID)}, utils.E(utils.CodeInvalidArgument, op, "unknown action", nil)
	}
}

func (m *Machine) stepLocked(userID string) models.Step {
	if st := m.getState(userID); st != nil {
		return st.Step
	}
	return models.StepAwaitingAudio
}

func (m *Machine) applyMode(ctx context.Context, userID string, ev Event) (Reply, error) {
	const op = "Workflow.Mode"

	if _, err := m.sessions.Get(ctx, userID); err != nil {
		m.setState(userID, nil)
		return Reply{Step: models.StepAwaitingAudio}, utils.E(utils.CodeSessionExpired, op, "audio session expired, upload again", nil)
	}

	spec, ok := models.ModeByID(ev.Mode)
	if !ok {
		return Reply{Step: models.StepAwaitingMode}, utils.E(utils.CodeInvalidArgument, op, "unknown mode", nil)
	}

	tier := spec.DefaultTier
	if ev.Tier != "" {
		if !spec.AllowsTier(models.Tier(ev.Tier)) {
			return Reply{Step: models.StepAwaitingMode}, utils.E(utils.CodeInvalidArgument, op, "mode does not accept this tier", nil)
		}
		tier = models.Tier(ev.Tier)
	}

	st := &models.WorkflowState{UserID: userID, Mode: spec.ID, Tier: tier}
	switch spec.Languages {
	case models.LangSourceTarget:
		st.Step = models.StepAwaitingSourceLanguage
	case models.LangOutput:
		st.Step = models.StepAwaitingOutputLanguage
	default:
		return m.toDispatch(ctx, userID, st, spec)
	}
	m.setState(userID, st)
	return Reply{Step: st.Step}, nil
}

func (m *Machine) applyTier(userID string, ev Event) (Reply, error) {
	const op = "Workflow.Tier"

	st := m.getState(userID)
	if st == nil || st.Mode == "" {
		return Reply{Step: m.stepLocked(userID)}, utils.E(utils.CodeParameterMissing, op, "select a mode first", nil)
	}
	spec, _ := models.ModeByID(string(st.Mode))
	if !spec.AllowsTier(models.Tier(ev.Tier)) {
		return Reply{Step: st.Step}, utils.E(utils.CodeInvalidArgument, op, "mode does not accept this tier", nil)
	}
	st.Tier = models.Tier(ev.Tier)
	m.setState(userID, st)
	return Reply{Step: st.Step}, nil
}

func (m *Machine) applyLanguage(ctx context.Context, userID string, ev Event) (Reply, error) {
	const op = "Workflow.Language"

	if _, err := m.sessions.Get(ctx, userID); err != nil {
		m.setState(userID, nil)
		return Reply{Step: models.StepAwaitingAudio}, utils.E(utils.CodeSessionExpired, op, "audio session expired, upload again", nil)
	}

	lang := strings.TrimSpace(strings.ToLower(ev.Language))
	if lang == "" {
		return Reply{Step: m.stepLocked(userID)}, utils.E(utils.CodeInvalidArgument, op, "language code is required", nil)
	}

	st := m.getState(userID)
	if st == nil {
		return Reply{Step: models.StepAwaitingMode}, utils.E(utils.CodeParameterMissing, op, "select a mode first", nil)
	}
	spec, _ := models.ModeByID(string(st.Mode))

	switch st.Step {
	case models.StepAwaitingSourceLanguage:
		st.SourceLanguage = lang
		st.Step = models.StepAwaitingTargetLanguage
		m.setState(userID, st)
		return Reply{Step: st.Step}, nil

	case models.StepAwaitingTargetLanguage:
		if strings.EqualFold(st.SourceLanguage, lang) {
			return Reply{Step: st.Step}, utils.E(utils.CodeInvalidArgument, op, "source and target languages must differ", nil)
		}
		st.TargetLanguage = lang
		return m.toDispatch(ctx, userID, st, spec)

	case models.StepAwaitingOutputLanguage:
		st.TargetLanguage = lang
		return m.toDispatch(ctx, userID, st, spec)

	default:
		return Reply{Step: st.Step}, utils.E(utils.CodeParameterMissing, op, "no language selection pending", nil)
	}
}

// toDispatch snapshots the session and hands the accumulated parameters to
// the caller. The snapshot pins the version token so a result for a
// superseded clip can be recognized and discarded.
func (m *Machine) toDispatch(ctx context.Context, userID string, st *models.WorkflowState, spec models.ModeSpec) (Reply, error) {
	const op = "Workflow.Dispatch"

	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		m.setState(userID, nil)
		return Reply{Step: models.StepAwaitingAudio}, utils.E(utils.CodeSessionExpired, op, "audio session expired, upload again", nil)
	}

	st.Step = models.StepDispatching
	m.setState(userID, st)

	m.log.WithFields(logrus.Fields{
		"user_id": userID,
		"mode":    string(st.Mode),
		"tier":    string(st.Tier),
	}).Info("workflow reached dispatch")

	return Reply{
		Step: models.StepDispatching,
		Dispatch: &Dispatch{
			UserID:         userID,
			Mode:           spec,
			Tier:           st.Tier,
			SourceLanguage: st.SourceLanguage,
			TargetLanguage: st.TargetLanguage,
			Session:        sess,
		},
	}, nil
}
