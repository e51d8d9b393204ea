package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pharmacy_backend/config"
	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"bitbucket.org/mmdatafocus/pharmacy_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// postingRetries bounds the retry loop for conditional-decrement conflicts.
// Business-rule failures never retry; see models.IsRetryableError.
const postingRetries = 3

// runPosting executes fn inside one database transaction holding the advisory
// lock for the reference, retrying the whole transaction when a concurrent
// writer raced a batch decrement.
func runPosting(ctx context.Context, logger *logrus.Logger, referenceType models.ReferenceType, referenceId int, fn func(tx *gorm.DB) error) error {
	db := config.GetDB()

	var lastErr error
	for attempt := 1; attempt <= postingRetries; attempt++ {
		lastErr = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := AcquirePostingLock(tx, referenceType, referenceId); err != nil {
				return err
			}
			defer ReleasePostingLock(tx, referenceType, referenceId)
			return fn(tx)
		})
		if lastErr == nil {
			// Cached report snapshots are stale after any posting.
			config.DeleteRedisKeys("report:stock-summary", "report:expiry")
			return nil
		}
		if !models.IsRetryableError(lastErr) {
			return lastErr
		}
		logger.WithFields(logrus.Fields{
			"reference_type": referenceType,
			"reference_id":   referenceId,
			"attempt":        attempt,
		}).Warn("posting conflict, retrying")
	}
	return lastErr
}

func ensureTransition(doc models.TradeDocument, action string) error {
	status := doc.GetStatus()
	ok := false
	switch action {
	case "approve":
		ok = models.CanApprove(status)
	case "cancel":
		ok = models.CanCancel(status)
	case "unapprove":
		ok = models.CanUnapprove(status)
	}
	if !ok {
		return &models.IllegalTransitionError{DocumentId: doc.GetId(), From: status, Action: action}
	}
	return nil
}

// stampApprovedTx moves a document to Approved with its audit fields. The
// model pointer selects the table; only status and stamps change.
func stampApprovedTx(tx *gorm.DB, model interface{}, id int, userId int, at time.Time) error {
	return tx.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.DocumentStatusApproved,
		"approved_by": userId,
		"approved_at": at,
	}).Error
}

func stampCancelledTx(tx *gorm.DB, model interface{}, id int, userId int, at time.Time) error {
	return tx.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       models.DocumentStatusCancelled,
		"cancelled_by": userId,
		"cancelled_at": at,
	}).Error
}

// stampDraftTx returns an approved document to Draft, clearing the approval
// stamps so a later approval records fresh ones.
func stampDraftTx(tx *gorm.DB, model interface{}, id int) error {
	return tx.Model(model).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.DocumentStatusDraft,
		"approved_by": nil,
		"approved_at": nil,
	}).Error
}

func postingActor(ctx context.Context) int {
	userId, _ := utils.GetUserIdFromContext(ctx)
	return userId
}
