package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/KeyT9999/keyt-shop-backend/internal/order/domain"
)

func (s *Server) ListOrders(c *gin.Context) {
	filter := orderdomain.ListFilter{
		OrderStatus:   orderdomain.OrderStatus(strings.TrimSpace(c.Query("order_status"))),
		PaymentStatus: orderdomain.PaymentStatus(strings.TrimSpace(c.Query("payment_status"))),
		Limit:         intQuery(c, "limit", 50),
		Offset:        intQuery(c, "offset", 0),
	}

	orders, err := s.orderSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (s *Server) GetOrderAdmin(c *gin.Context) {
	id, err := parseOrderID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(c.Request.Context(), id, "")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

func (s *Server) ConfirmOrder(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.Confirm)
}

func (s *Server) ProcessOrder(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.StartProcessing)
}

func (s *Server) CompleteOrder(c *gin.Context) {
	s.transitionOrder(c, s.orderSvc.Complete)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) CancelOrder(c *gin.Context) {
	id, err := parseOrderID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req cancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	order, err := s.orderSvc.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

func (s *Server) transitionOrder(c *gin.Context, step func(context.Context, snowflake.ID) (*orderdomain.Order, error)) {
	id, err := parseOrderID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := step(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": toOrderResponse(order)})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
