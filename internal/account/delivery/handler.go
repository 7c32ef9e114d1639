package delivery

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coder92330/nylas-mail/internal/account/usecase"
	"github.com/coder92330/nylas-mail/internal/auth"
)

const tokenTTL = 24 * time.Hour

type AccountHandler struct {
	usecase   usecase.AccountUsecase
	jwtSecret string
}

func NewAccountHandler(uc usecase.AccountUsecase, jwtSecret string) *AccountHandler {
	return &AccountHandler{usecase: uc, jwtSecret: jwtSecret}
}

func (h *AccountHandler) Create(c *gin.Context) {
	var input usecase.AccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.usecase.Create(input)
	if err != nil {
		if errors.Is(err, usecase.ErrAccountExists) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := auth.GenerateAccountToken(account.ID, h.jwtSecret, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account": account, "token": token})
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.usecase.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.usecase.Get(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *AccountHandler) Update(c *gin.Context) {
	var input usecase.AccountInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.usecase.Update(c.Param("id"), input)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (h *AccountHandler) Delete(c *gin.Context) {
	if err := h.usecase.Delete(c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AccountHandler) SyncNow(c *gin.Context) {
	if err := h.usecase.SyncNow(c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sync requested"})
}

// Token issues a fresh account-scoped bearer token.
func (h *AccountHandler) Token(c *gin.Context) {
	account, err := h.usecase.Get(c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	token, err := auth.GenerateAccountToken(account.ID, h.jwtSecret, tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *AccountHandler) renderError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrAccountNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
