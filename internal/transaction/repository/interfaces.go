package repository

import "dealsync-backend/internal/transaction/domain"

// TransactionRepository defines the interface for transaction persistence.
type TransactionRepository interface {
	FindByID(id string) (*domain.Transaction, error)
	Create(txn *domain.Transaction) error
	UpdateTextThreadCount(id string, count int) error
	ListAssignments(transactionID string) ([]*domain.ContactAssignment, error)
	CreateAssignment(assignment *domain.ContactAssignment) error
}

// ContactRepository defines the interface for contact persistence.
type ContactRepository interface {
	FindByID(id string) (*domain.Contact, error)
	Create(contact *domain.Contact) error
	ListEmails(contactID string) ([]*domain.ContactEmail, error)
	ListPhones(contactID string) ([]*domain.ContactPhone, error)
	AddEmail(email *domain.ContactEmail) error
	AddPhone(phone *domain.ContactPhone) error
}
