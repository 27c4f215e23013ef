package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealsync-backend/internal/transaction/domain"
)

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new instance of contactRepository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) FindByID(id string) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.Where("id = ?", id).First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) Create(contact *domain.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	return r.db.Create(contact).Error
}

func (r *contactRepository) ListEmails(contactID string) ([]*domain.ContactEmail, error) {
	var emails []*domain.ContactEmail
	err := r.db.Where("contact_id = ?", contactID).Find(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

func (r *contactRepository) ListPhones(contactID string) ([]*domain.ContactPhone, error) {
	var phones []*domain.ContactPhone
	err := r.db.Where("contact_id = ?", contactID).Find(&phones).Error
	if err != nil {
		return nil, err
	}
	return phones, nil
}

func (r *contactRepository) AddEmail(email *domain.ContactEmail) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	return r.db.Create(email).Error
}

func (r *contactRepository) AddPhone(phone *domain.ContactPhone) error {
	if phone.ID == "" {
		phone.ID = uuid.New().String()
	}
	return r.db.Create(phone).Error
}
