package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
	"github.com/mmdatafocus/warehouse_stock/workflow"
	"github.com/sirupsen/logrus"
)

type outboxReplayRequest struct {
	RecordIds []int `json:"recordIds" validate:"required,min=1,dive,gt=0"`
}

// outboxReplay puts DEAD or FAILED stock events back in the dispatch queue.
func (s *server) outboxReplay(c *gin.Context) {
	var req outboxReplayRequest
	if !bindJSON(c, &req) {
		return
	}
	res := s.db.WithContext(c.Request.Context()).
		Model(&models.StockEventRecord{}).
		Where("id IN ? AND publish_status IN ?", req.RecordIds, []string{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed}).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		_ = c.Error(res.Error)
		respondFailure(c, http.StatusServiceUnavailable, errorBody{Kind: "DependencyUnavailable", Message: "could not update outbox"})
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	s.logger.WithFields(logrus.Fields{
		"field":          "OutboxReplay",
		"record_ids":     req.RecordIds,
		"requeued":       res.RowsAffected,
		"correlation_id": cid,
	}).Info("outbox records requeued")
	respondOK(c, http.StatusOK, gin.H{"requeued": res.RowsAffected})
}

// reconcileNow runs the ledger reconciliation inline and returns the mismatches.
func (s *server) reconcileNow(c *gin.Context) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	reports, err := workflow.ReconcileLedger(c.Request.Context(), s.store, s.db, s.logger, cid)
	if err != nil {
		_ = c.Error(err)
		respondFailure(c, http.StatusServiceUnavailable, errorBody{Kind: "DependencyUnavailable", Message: "reconciliation failed"})
		return
	}
	respondOK(c, http.StatusOK, gin.H{"mismatches": len(reports), "reports": reports})
}
