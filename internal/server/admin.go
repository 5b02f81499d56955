package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/locknd/tochka-exchange/internal/models"
)

func (s *Server) deleteUser(c *gin.Context) {
	userID, ok := pathUUID(c, "user_id")
	if !ok {
		return
	}

	user, err := s.exchange.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) createInstrument(c *gin.Context) {
	var payload models.InstrumentPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if _, err := s.exchange.CreateInstrument(c.Request.Context(), &payload); err != nil {
		s.writeError(c, err)
		return
	}
	s.cache.Delete(instrumentsCacheKey)
	c.JSON(http.StatusOK, models.Ok())
}

func (s *Server) deleteInstrument(c *gin.Context) {
	if err := s.exchange.DeleteInstrument(c.Request.Context(), c.Param("ticker")); err != nil {
		s.writeError(c, err)
		return
	}
	s.cache.Delete(instrumentsCacheKey)
	c.JSON(http.StatusOK, models.Ok())
}

func (s *Server) deposit(c *gin.Context) {
	var req models.DepositWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := s.exchange.Deposit(c.Request.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Ok())
}

func (s *Server) withdraw(c *gin.Context) {
	var req models.DepositWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := s.exchange.Withdraw(c.Request.Context(), req.UserID, req.Ticker, req.Amount); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Ok())
}
