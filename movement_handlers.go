package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/workflow"
)

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (s *server) getProductMovements(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rows, err := s.engine.MovementsByProduct(c.Request.Context(), c.Param("productId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, movementViews(c.Request.Context(), rows))
}

func (s *server) getWarehouseMovements(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	rows, err := s.engine.MovementsByWarehouse(c.Request.Context(), c.Param("warehouseId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, movementViews(c.Request.Context(), rows))
}

func queryRange(c *gin.Context) (from, to time.Time, ok bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		badRequest(c, "from must be an RFC3339 timestamp")
		return from, to, false
	}
	to, err = time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		badRequest(c, "to must be an RFC3339 timestamp")
		return from, to, false
	}
	return from, to, true
}

func (s *server) getMovementsBetween(c *gin.Context) {
	from, to, ok := queryRange(c)
	if !ok {
		return
	}
	rows, err := s.engine.MovementsBetween(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, movementViews(c.Request.Context(), rows))
}

func (s *server) exportMovements(c *gin.Context) {
	from, to, ok := queryRange(c)
	if !ok {
		return
	}
	rows, err := s.engine.MovementsBetween(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := workflow.ExportMovementsXLSX(rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=movements.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (s *server) replayMovements(c *gin.Context) {
	result, err := s.engine.Replay(c.Request.Context(), c.Param("productId"), c.Param("warehouseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
