package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/models"
)

func (s *server) listWarehouses(c *gin.Context) {
	rows, err := models.ListWarehouses(c.Request.Context(), s.warehouses)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rows)
}

func (s *server) getWarehouse(c *gin.Context) {
	w, err := models.GetWarehouse(c.Request.Context(), s.warehouses, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, w)
}

func (s *server) createWarehouse(c *gin.Context) {
	var input models.NewWarehouse
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	w, err := models.CreateWarehouse(c.Request.Context(), s.warehouses, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, w)
}

func (s *server) updateWarehouse(c *gin.Context) {
	var input models.NewWarehouse
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	w, err := models.UpdateWarehouse(c.Request.Context(), s.warehouses, c.Param("id"), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, w)
}

func (s *server) deleteWarehouse(c *gin.Context) {
	w, err := models.DeleteWarehouse(c.Request.Context(), s.warehouses, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, w)
}
