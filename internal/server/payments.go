package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
	"github.com/KeyT9999/keyt-shop-backend/internal/reconcile"
	"go.uber.org/zap"
)

type createPaymentRequest struct {
	OrderID string `json:"order_id"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	id, err := snowflake.ParseString(strings.TrimSpace(req.OrderID))
	if err != nil {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	link, err := s.orderSvc.CreatePaymentLink(c.Request.Context(), id, ownerEmail(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment": link})
}

// GetPaymentInfo polls the gateway for the order's payment state and
// applies whatever it learns before answering. It is how the frontend
// recovers when the webhook never arrived.
func (s *Server) GetPaymentInfo(c *gin.Context) {
	id, err := parseOrderID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.reconcileSvc.ProcessPoll(c.Request.Context(), id, ownerEmail(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

func (s *Server) GetOrderByCode(c *gin.Context) {
	code, err := strconv.Atoi(strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, orderdomain.ErrOrderNotFound)
		return
	}

	order, err := s.orderSvc.GetByCode(c.Request.Context(), code, ownerEmail(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

// HandlePayOSWebhook acknowledges every notification with 200. Anything
// else makes the gateway retry-storm a payload we already know we will
// never accept.
func (s *Server) HandlePayOSWebhook(c *gin.Context) {
	var payload reconcile.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.log.Warn("webhook body unreadable", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	outcome, err := s.reconcileSvc.ProcessWebhook(c.Request.Context(), payload)
	if err != nil {
		s.log.Error("webhook processing failed", zap.Error(err), zap.String("outcome", outcome))
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
