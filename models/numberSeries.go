package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentNumberSeries hands out gapless document numbers per document kind.
// The row is locked for the duration of the creating transaction, so two
// drafts created concurrently cannot share a number.
type DocumentNumberSeries struct {
	ID            int           `gorm:"primary_key" json:"id"`
	ReferenceType ReferenceType `gorm:"type:enum('PI','SI','PR','SR','ADJ','OB','SP','CR');uniqueIndex;not null" json:"reference_type"`
	NextNumber    int           `gorm:"not null;default:1" json:"next_number"`
}

// NextDocumentNumberTx assigns the next number for a document kind, e.g.
// "PI-000042". Numbers are immutable once assigned.
func NextDocumentNumberTx(tx *gorm.DB, referenceType ReferenceType) (string, error) {
	var series DocumentNumberSeries
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference_type = ?", referenceType).
		First(&series).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		series = DocumentNumberSeries{ReferenceType: referenceType, NextNumber: 1}
		if err := tx.Create(&series).Error; err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}

	number := fmt.Sprintf("%s-%06d", referenceType, series.NextNumber)
	if err := tx.Model(&DocumentNumberSeries{}).
		Where("id = ?", series.ID).
		Update("next_number", gorm.Expr("next_number + 1")).Error; err != nil {
		return "", err
	}
	return number, nil
}
