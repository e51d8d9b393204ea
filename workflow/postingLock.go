package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/pharmacy_backend/models"
	"gorm.io/gorm"
)

// AcquirePostingLock serializes approve/cancel/unapprove per document across
// instances using MySQL advisory locks.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB connection that runs the posting transaction.
func AcquirePostingLock(tx *gorm.DB, referenceType models.ReferenceType, referenceId int) error {
	lockName := postingLockName(referenceType, referenceId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock %s", lockName)
	}
	return nil
}

func ReleasePostingLock(tx *gorm.DB, referenceType models.ReferenceType, referenceId int) {
	lockName := postingLockName(referenceType, referenceId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}

func postingLockName(referenceType models.ReferenceType, referenceId int) string {
	return fmt.Sprintf("posting:%s:%d", referenceType, referenceId)
}
