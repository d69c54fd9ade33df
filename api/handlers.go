package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rubex-exchange/rubex/internal/identities"
	"github.com/rubex-exchange/rubex/internal/orders"
	"github.com/rubex-exchange/rubex/internal/partner"
	"github.com/rubex-exchange/rubex/internal/quote"
	"github.com/rubex-exchange/rubex/internal/rates"
	"github.com/rubex-exchange/rubex/internal/requisites"
	"github.com/rubex-exchange/rubex/pkg/models"
)

// respondError maps service errors onto the API error taxonomy:
// validation faults are 4xx, missing rate data is 503, everything
// unexpected is 500.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rates.ErrNoSnapshot):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "exchange rates unavailable"})
	case errors.Is(err, quote.ErrInvalidAmount),
		errors.Is(err, quote.ErrUnknownCurrency),
		errors.Is(err, quote.ErrUnconvertiblePair),
		errors.Is(err, orders.ErrInvalidOrder),
		errors.Is(err, partner.ErrInsufficientBalance),
		errors.Is(err, partner.ErrBelowMinimum):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, partner.ErrNotFound),
		errors.Is(err, requisites.ErrNotFound),
		errors.Is(err, identities.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, identities.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, identities.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}

// healthCheck handles the health check endpoint.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

// getRates returns the current rate snapshot.
func (s *Server) getRates(c *gin.Context) {
	snap, err := s.rateStore.Current()
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make(map[string]string, len(snap.Rates))
	for symbol, rate := range snap.Rates {
		out[symbol] = rate.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"rates":     out,
		"timestamp": snap.Timestamp,
	})
}

// createQuote computes a conversion quote.
func (s *Server) createQuote(c *gin.Context) {
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := s.quotes.Quote(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// submitOrder creates a new exchange order.
func (s *Server) submitOrder(c *gin.Context) {
	var req models.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var userID *uuid.UUID
	if id := currentUserID(c); id != uuid.Nil {
		userID = &id
	}
	order, err := s.orders.Submit(c.Request.Context(), &req, userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order created", "order_id": order.OrderID})
}

// getOrder returns an order by its short public id.
func (s *Server) getOrder(c *gin.Context) {
	order, err := s.orders.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// --- AUTH HANDLERS ---

func (s *Server) register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.identities.Register(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (s *Server) login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := s.identities.Login(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) verify2FA(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Code   string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	resp, err := s.identities.Verify2FA(c.Request.Context(), userID, req.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// --- USER HANDLERS ---

func (s *Server) getProfile(c *gin.Context) {
	user, err := s.identities.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (s *Server) updateNotifications(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"email_notifications" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.identities.SetEmailNotifications(c.Request.Context(), currentUserID(c), *req.Enabled); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email_notifications": *req.Enabled})
}

func (s *Server) listUserOrders(c *gin.Context) {
	list, err := s.orders.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (s *Server) enable2FA(c *gin.Context) {
	secret, url, err := s.identities.Enable2FA(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "url": url})
}

func (s *Server) activate2FA(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.identities.Activate2FA(c.Request.Context(), currentUserID(c), req.Code); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA enabled"})
}

func (s *Server) disable2FA(c *gin.Context) {
	if err := s.identities.Disable2FA(c.Request.Context(), currentUserID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "2FA disabled"})
}

// --- PARTNER HANDLERS ---

func (s *Server) getPartnerStats(c *gin.Context) {
	stats, err := s.partners.Stats(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) createWithdrawal(c *gin.Context) {
	var req models.CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	withdrawal, err := s.partners.CreateWithdrawal(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Withdrawal request created", "withdrawal_id": withdrawal.WithdrawalID})
}

func (s *Server) listWithdrawals(c *gin.Context) {
	list, err := s.partners.ListWithdrawals(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

// --- REQUISITE HANDLERS ---

func (s *Server) listRequisites(c *gin.Context) {
	list, err := s.requisites.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requisites": list})
}

func (s *Server) createRequisite(c *gin.Context) {
	var req models.RequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisite, err := s.requisites.Create(c.Request.Context(), currentUserID(c), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"requisite": requisite})
}

func (s *Server) updateRequisite(c *gin.Context) {
	requisiteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid requisite id"})
		return
	}
	var req models.RequisiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	requisite, err := s.requisites.Update(c.Request.Context(), currentUserID(c), requisiteID, &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requisite": requisite})
}

func (s *Server) deleteRequisite(c *gin.Context) {
	requisiteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid requisite id"})
		return
	}
	if err := s.requisites.Delete(c.Request.Context(), currentUserID(c), requisiteID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Requisite deleted"})
}

// --- ADMIN HANDLERS ---

func (s *Server) listOrders(c *gin.Context) {
	list, err := s.orders.List(c.Request.Context(), models.Status(c.Query("status")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (s *Server) transitionOrderStatus(c *gin.Context) {
	var req models.TransitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := s.orders.TransitionStatus(c.Request.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Status updated", "order": order})
}

func (s *Server) listAllWithdrawals(c *gin.Context) {
	list, err := s.partners.ListAllWithdrawals(c.Request.Context(), models.Status(c.Query("status")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": list})
}

func (s *Server) transitionWithdrawalStatus(c *gin.Context) {
	var req models.TransitionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	withdrawal, err := s.partners.TransitionWithdrawalStatus(c.Request.Context(), c.Param("withdrawalId"), req.Status)
	if err != nil {
		if errors.Is(err, partner.ErrNotFound) {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Withdrawal status updated", "withdrawal": withdrawal})
}

func (s *Server) getCommissions(c *gin.Context) {
	tiers, err := s.commissions.Tiers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tiers)
}

func (s *Server) updateCommissions(c *gin.Context) {
	var req models.CommissionUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.commissions.Update(c.Request.Context(), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tiers, err := s.commissions.Tiers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Commission config updated", "config": tiers})
}
