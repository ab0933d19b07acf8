package interfaces

import "context"

// Repository defines the interface for data persistence
type Repository interface {
	Organization() OrganizationRepository
	Session() SessionStore

	Close(ctx context.Context) error
}
