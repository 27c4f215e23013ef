package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/transaction/domain"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new instance of transactionRepository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) FindByID(id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := r.db.Where("id = ?", id).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) Create(txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	return r.db.Create(txn).Error
}

func (r *transactionRepository) UpdateTextThreadCount(id string, count int) error {
	return r.db.Model(&domain.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"text_thread_count": count, "updated_at": time.Now()}).Error
}

func (r *transactionRepository) ListAssignments(transactionID string) ([]*domain.ContactAssignment, error) {
	var assignments []*domain.ContactAssignment
	err := r.db.Where("transaction_id = ?", transactionID).Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *transactionRepository) CreateAssignment(assignment *domain.ContactAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.New().String()
	}
	return r.db.Create(assignment).Error
}
