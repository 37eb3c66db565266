package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
)

type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondFailure(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}

func statusForKind(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindInvalidArgument, ledger.KindInsufficientStock:
		return http.StatusBadRequest
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError maps ledger kinds, validation failures and warehouse errors onto the envelope.
func respondError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondFailure(c, http.StatusBadRequest, errorBody{
			Kind:    string(ledger.KindInvalidArgument),
			Message: "validation failed",
			Details: utils.ProcessValidationErrors(err),
		})
		return
	case errors.Is(err, models.ErrWarehouseNotFound):
		respondFailure(c, http.StatusNotFound, errorBody{Kind: string(ledger.KindNotFound), Message: err.Error()})
		return
	case errors.Is(err, models.ErrInvalidContactPhone):
		badRequest(c, err.Error())
		return
	case errors.Is(err, models.ErrWarehouseCodeTaken):
		respondFailure(c, http.StatusConflict, errorBody{Kind: string(ledger.KindConflict), Message: err.Error()})
		return
	}

	kind := ledger.KindOf(err)
	if kind == "" {
		_ = c.Error(err)
		respondFailure(c, http.StatusInternalServerError, errorBody{Kind: "Internal", Message: "internal error"})
		return
	}
	var le *ledger.Error
	message := err.Error()
	if errors.As(err, &le) && le.Message != "" {
		message = le.Message
	}
	if kind == ledger.KindDependencyUnavailable || kind == ledger.KindConflict {
		_ = c.Error(err)
	}
	respondFailure(c, statusForKind(kind), errorBody{Kind: string(kind), Message: message})
}

func badRequest(c *gin.Context, message string) {
	respondFailure(c, http.StatusBadRequest, errorBody{Kind: string(ledger.KindInvalidArgument), Message: message})
}

// bindJSON decodes the body and runs the validate tags.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	if err := utils.ValidateStruct(dst); err != nil {
		respondError(c, err)
		return false
	}
	return true
}
