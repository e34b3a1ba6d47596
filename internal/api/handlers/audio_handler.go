package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/omnihear/omnihear/internal/models"
	"github.com/omnihear/omnihear/internal/services"
	"github.com/omnihear/omnihear/internal/utils"
)

// AudioHandler receives uploads. A new upload replaces any prior clip for
// the user and resets the parameter dialogue to mode selection.
type AudioHandler struct {
	audio    services.AudioService
	maxBytes int64
}

func NewAudioHandler(audio services.AudioService, maxBytes int64) *AudioHandler {
	return &AudioHandler{audio: audio, maxBytes: maxBytes}
}

type uploadResponse struct {
	Message  string            `json:"message"`
	Version  string            `json:"version"`
	Size     int64             `json:"size"`
	MimeType string            `json:"mime_type"`
	Modes    []models.ModeSpec `json:"modes"`
}

// Upload handles POST /audio. Accepts either a multipart "audio" file or a
// raw body with a Content-Type header.
func (h *AudioHandler) Upload(c *gin.Context) {
	const op = "AudioHandler.Upload"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var data []byte
	var mime string
	var declared int64

	if file, err := c.FormFile("audio"); err == nil {
		declared = file.Size
		mime = file.Header.Get("Content-Type")
		if h.maxBytes > 0 && declared > h.maxBytes {
			// reject before reading a byte of the payload
			writeError(c, utils.E(utils.CodeSizeExceeded, op, "audio exceeds the maximum accepted size", nil))
			return
		}
		f, err := file.Open()
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to read upload", err))
			return
		}
		defer f.Close()
		data, err = io.ReadAll(io.LimitReader(f, h.maxBytes+1))
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to read upload", err))
			return
		}
	} else {
		declared = c.Request.ContentLength
		mime = c.ContentType()
		if h.maxBytes > 0 && declared > h.maxBytes {
			writeError(c, utils.E(utils.CodeSizeExceeded, op, "audio exceeds the maximum accepted size", nil))
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBytes+1))
		if err != nil {
			writeError(c, utils.E(utils.CodeInternal, op, "failed to read upload", err))
			return
		}
		data = body
	}

	sess, err := h.audio.Accept(c.Request.Context(), userID, data, mime, int64(len(data)))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, uploadResponse{
		Message:  "audio received, pick a processing mode",
		Version:  sess.Version,
		Size:     sess.Size,
		MimeType: sess.MimeType,
		Modes:    models.Modes(),
	})
}

// Current handles GET /audio: echoes the live session's metadata so a client
// can tell whether a clip is still retained before raising events.
func (h *AudioHandler) Current(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sess, err := h.audio.Current(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":     sess.Version,
		"size":        sess.Size,
		"mime_type":   sess.MimeType,
		"received_at": sess.ReceivedAt,
	})
}
