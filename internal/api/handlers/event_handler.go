package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/services"
	"github.com/omnihear/omnihear/internal/utils"
	"github.com/omnihear/omnihear/internal/workflow"
)

// EventHandler decodes selection events at the transport boundary and feeds
// them through the workflow machine. When an event completes a mode's
// parameter sequence the resulting dispatch is queued here.
type EventHandler struct {
	machine  *workflow.Machine
	dispatch services.DispatchService
}

func NewEventHandler(machine *workflow.Machine, dispatch services.DispatchService) *EventHandler {
	return &EventHandler{machine: machine, dispatch: dispatch}
}

type eventResponse struct {
	Step       models.Step `json:"step"`
	DispatchID string      `json:"dispatch_id,omitempty"`
	Message    string      `json:"message"`
}

func (h *EventHandler) Post(c *gin.Context) {
	const op = "EventHandler.Post"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var ev workflow.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "invalid event payload", err))
		return
	}
	if ev.Action == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "action is required", nil))
		return
	}

	reply, err := h.machine.Apply(c.Request.Context(), userID, ev)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := eventResponse{Step: reply.Step, Message: stepMessage(reply.Step)}
	if reply.Dispatch != nil {
		id, err := h.dispatch.Enqueue(c.Request.Context(), reply.Dispatch)
		if err != nil {
			h.machine.Complete(userID)
			writeError(c, err)
			return
		}
		resp.DispatchID = id
		resp.Message = "processing, results arrive on your feed"
	}
	c.JSON(http.StatusOK, resp)
}

// State handles GET /state for clients re-rendering their keyboard.
func (h *EventHandler) State(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	step := h.machine.State(userID)
	c.JSON(http.StatusOK, eventResponse{Step: step, Message: stepMessage(step)})
}

func stepMessage(step models.Step) string {
	switch step {
	case models.StepAwaitingAudio:
		return "upload an audio file first"
	case models.StepAwaitingMode:
		return "pick a processing mode"
	case models.StepAwaitingSourceLanguage:
		return "pick the source language"
	case models.StepAwaitingTargetLanguage:
		return "pick the target language"
	case models.StepAwaitingOutputLanguage:
		return "pick the output language"
	case models.StepDispatching:
		return "processing"
	default:
		return ""
	}
}
