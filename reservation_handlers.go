package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/models"
)

func (s *server) listActiveReservations(c *gin.Context) {
	rows, err := s.engine.ActiveReservations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reservationViews(c.Request.Context(), rows, s.now))
}

func (s *server) getOrderReservations(c *gin.Context) {
	rows, err := s.engine.ReservationsByOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reservationViews(c.Request.Context(), rows, s.now))
}

func (s *server) getProductReservations(c *gin.Context) {
	rows, err := s.engine.ActiveReservationsByProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reservationViews(c.Request.Context(), rows, s.now))
}

func (s *server) expireReservation(c *gin.Context) {
	b, err := s.engine.ExpireReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	r, err := s.engine.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"reservation": reservationViews(c.Request.Context(), []*models.Reservation{r}, s.now)[0],
		"balance":     balanceViewOf(c.Request.Context(), b),
	})
}
