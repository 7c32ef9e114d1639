package delivery

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/coder92330/nylas-mail/internal/mail/usecase"
)

type MailHandler struct {
	usecase usecase.MailUsecase
}

func NewMailHandler(uc usecase.MailUsecase) *MailHandler {
	return &MailHandler{usecase: uc}
}

func (h *MailHandler) ListThreads(c *gin.Context) {
	accountID := c.GetString("accountID")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	threads, err := h.usecase.ListThreads(accountID, c.Query("q"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *MailHandler) GetThread(c *gin.Context) {
	accountID := c.GetString("accountID")
	thread, messages, err := h.usecase.GetThread(accountID, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"thread": thread, "messages": messages})
}

func (h *MailHandler) ListMailboxes(c *gin.Context) {
	accountID := c.GetString("accountID")
	mailboxes, err := h.usecase.ListMailboxes(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mailboxes": mailboxes})
}

func (h *MailHandler) ListContacts(c *gin.Context) {
	accountID := c.GetString("accountID")
	contacts, err := h.usecase.ListContacts(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (h *MailHandler) MarkRead(c *gin.Context) {
	h.flagUpdate(c, func(accountID, messageID string) error {
		return h.usecase.SetRead(accountID, messageID, true)
	})
}

func (h *MailHandler) MarkUnread(c *gin.Context) {
	h.flagUpdate(c, func(accountID, messageID string) error {
		return h.usecase.SetRead(accountID, messageID, false)
	})
}

func (h *MailHandler) Star(c *gin.Context) {
	h.flagUpdate(c, func(accountID, messageID string) error {
		return h.usecase.SetStarred(accountID, messageID, true)
	})
}

func (h *MailHandler) Unstar(c *gin.Context) {
	h.flagUpdate(c, func(accountID, messageID string) error {
		return h.usecase.SetStarred(accountID, messageID, false)
	})
}

func (h *MailHandler) Move(c *gin.Context) {
	var body struct {
		MailboxID string `json:"mailbox_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.flagUpdate(c, func(accountID, messageID string) error {
		return h.usecase.Move(accountID, messageID, body.MailboxID)
	})
}

func (h *MailHandler) flagUpdate(c *gin.Context, apply func(accountID, messageID string) error) {
	accountID := c.GetString("accountID")
	if err := apply(accountID, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *MailHandler) renderError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
