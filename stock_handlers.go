package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/appctx"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
)

type stockRequest struct {
	ProductId   string `json:"productId" validate:"required,max=64"`
	WarehouseId string `json:"warehouseId" validate:"required,max=64"`
	Quantity    *int   `json:"quantity" validate:"required"`
	Reason      string `json:"reason" validate:"max=255"`
}

type reservationRequest struct {
	ProductId   string     `json:"productId" validate:"required,max=64"`
	WarehouseId string     `json:"warehouseId" validate:"required,max=64"`
	Quantity    *int       `json:"quantity" validate:"required"`
	OrderId     string     `json:"orderId" validate:"required,max=100"`
	Channel     string     `json:"channel" validate:"max=50"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

type transferRequest struct {
	ProductId       string `json:"productId" validate:"required,max=64"`
	FromWarehouseId string `json:"fromWarehouseId" validate:"required,max=64"`
	ToWarehouseId   string `json:"toWarehouseId" validate:"required,max=64,nefield=FromWarehouseId"`
	Quantity        *int   `json:"quantity" validate:"required"`
	Reason          string `json:"reason" validate:"max=255"`
}

type configureRequest struct {
	ProductId         string  `json:"productId" validate:"required,max=64"`
	WarehouseId       string  `json:"warehouseId" validate:"required,max=64"`
	LowStockThreshold *int    `json:"lowStockThreshold" validate:"omitempty,min=0"`
	Location          *string `json:"location" validate:"omitempty,max=100"`
}

func (r stockRequest) input() ledger.StockInput {
	return ledger.StockInput{
		ProductId:   r.ProductId,
		WarehouseId: r.WarehouseId,
		Quantity:    *r.Quantity,
		Reason:      r.Reason,
	}
}

func (r reservationRequest) input(c *gin.Context) ledger.ReservationInput {
	channel := r.Channel
	if channel == "" {
		channel, _ = appctx.GetString(c.Request.Context(), appctx.ContextKeyChannel)
	}
	return ledger.ReservationInput{
		ProductId:   r.ProductId,
		WarehouseId: r.WarehouseId,
		Quantity:    *r.Quantity,
		OrderId:     r.OrderId,
		Channel:     channel,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (s *server) getProductStock(c *gin.Context) {
	balances, err := s.engine.GetBalancesByProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, balanceViews(c.Request.Context(), balances))
}

func (s *server) getProductTotal(c *gin.Context) {
	productId := c.Param("productId")
	total, err := s.engine.GetTotalAvailable(c.Request.Context(), productId)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"productId": productId, "totalAvailable": total})
}

func (s *server) getStock(c *gin.Context) {
	b, err := s.engine.GetBalance(c.Request.Context(), c.Param("productId"), c.Param("warehouseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, balanceViewOf(c.Request.Context(), b))
}

func (s *server) getWarehouseStock(c *gin.Context) {
	balances, err := s.engine.GetBalancesByWarehouse(c.Request.Context(), c.Param("warehouseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, balanceViews(c.Request.Context(), balances))
}

type stockFunc func(ctx context.Context, in ledger.StockInput) (*models.Balance, error)

type reservationFunc func(ctx context.Context, in ledger.ReservationInput) (*models.Balance, error)

// stockMutation serves set, increment and decrement, which share a body.
func stockMutation(apply stockFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req stockRequest
		if !bindJSON(c, &req) {
			return
		}
		b, err := apply(c.Request.Context(), req.input())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, balanceViewOf(c.Request.Context(), b))
	}
}

// reservationMutation serves reserve, unreserve and fulfill.
func reservationMutation(apply reservationFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reservationRequest
		if !bindJSON(c, &req) {
			return
		}
		b, err := apply(c.Request.Context(), req.input(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, balanceViewOf(c.Request.Context(), b))
	}
}

func (s *server) transferStock(c *gin.Context) {
	var req transferRequest
	if !bindJSON(c, &req) {
		return
	}
	balances, err := s.engine.Transfer(c.Request.Context(), ledger.TransferInput{
		ProductId:       req.ProductId,
		FromWarehouseId: req.FromWarehouseId,
		ToWarehouseId:   req.ToWarehouseId,
		Quantity:        *req.Quantity,
		Reason:          req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	views := balanceViews(c.Request.Context(), balances)
	respondOK(c, http.StatusOK, gin.H{"from": views[0], "to": views[1]})
}

func (s *server) configureStock(c *gin.Context) {
	var req configureRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := s.engine.Configure(c.Request.Context(), ledger.ConfigureInput{
		ProductId:         req.ProductId,
		WarehouseId:       req.WarehouseId,
		LowStockThreshold: req.LowStockThreshold,
		Location:          req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, balanceViewOf(c.Request.Context(), b))
}
