package order

import (
	"context"
	"time"

	"tableside/internal/models"
)

// Repository is the persistence surface of the order aggregate. Every
// method runs inside the transaction carried by ctx when WithTx opened
// one; lookups of missing rows return a models.ErrNotFound variant and
// guarded writes that match no row return models.ErrPersistenceConflict.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error

	FindActiveOrder(ctx context.Context, key models.TableKey) (*models.Order, error)
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	// GetOrderForUpdate takes the exclusive row lock transitions need.
	GetOrderForUpdate(ctx context.Context, orderID string) (models.Order, error)
	// GetOrderForShare takes the row lock line mutations need: shared
	// between line mutations, exclusive against transitions.
	GetOrderForShare(ctx context.Context, orderID string) (models.Order, error)
	// SaveTransition writes status, totals and stamps if the stored
	// status still equals expected.
	SaveTransition(ctx context.Context, order models.Order, expected models.OrderStatus) error

	// CreateParticipant reports false when the session already joined.
	CreateParticipant(ctx context.Context, participant models.Participant) (bool, error)
	GetParticipant(ctx context.Context, orderID, participantID string) (models.Participant, error)
	FindParticipantBySession(ctx context.Context, orderID, sessionID string) (*models.Participant, error)
	ListParticipants(ctx context.Context, orderID string) ([]models.Participant, error)
	UpdateParticipantLocale(ctx context.Context, orderID, participantID, locale string) error

	InsertLine(ctx context.Context, line models.OrderLine) error
	GetLineForUpdate(ctx context.Context, orderID, lineID string) (models.OrderLine, error)
	UpdateLineStatus(ctx context.Context, line models.OrderLine, expected models.LineStatus) error
	PromoteAddedLines(ctx context.Context, orderID string, at time.Time) ([]string, error)
	ListLines(ctx context.Context, orderID string) (models.Lines, error)

	AppendAction(ctx context.Context, entry models.ActionLogEntry) (int64, error)
	ListActions(ctx context.Context, orderID string) ([]models.ActionLogEntry, error)

	GetPreference(ctx context.Context, browsingContextID, sessionID string) (*models.PreOrderPreference, error)
	UpsertPreference(ctx context.Context, pref models.PreOrderPreference) error
}
