package mailscheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	TemplateNotFoundErr     = errors.New("The template was not found")
	ScheduleNotFoundErr     = errors.New("The schedule was not found")
	OrganizationNotFoundErr = errors.New("The organization was not found")
	UserNotFoundErr         = errors.New("The user was not found")

	InvalidScheduleErr    = errors.New("Invalid schedule specification")
	EmptyScheduleErr      = errors.New("Schedule produced no date/time slots")
	NoRecipientsErr       = errors.New("At least one recipient is required")
	TemplateNotUsableErr  = errors.New("The template is not usable for sending by this actor")
	AccessDeniedErr       = errors.New("Access denied")
	ScheduleNotPendingErr = errors.New("Only pending schedules can be cancelled")
)

type ScheduleCriteria struct {
	Status         ScheduleStatus
	OrganizationId *int64

	Offset int
	Limit  int
}

type ScheduleRepository interface {
	// CreateBatch persists all rows in one transaction, either every
	// expanded slot is written or none are.
	CreateBatch(ctx context.Context, schedules []*Schedule) error

	Get(ctx context.Context, id int64) (Schedule, error)

	// GetDuePending returns pending rows with scheduledAt at or before now,
	// ascending.
	GetDuePending(ctx context.Context, now time.Time) ([]Schedule, error)

	Matching(ctx context.Context, criteria ScheduleCriteria) ([]Schedule, int, error)

	// Transition performs a conditional status update and fails with
	// ScheduleNotPendingErr when the row is no longer in the from status.
	Transition(ctx context.Context, id int64, from, to ScheduleStatus) error

	// MarkProcessed writes the terminal outcome of a scan (status, sentAt,
	// errorMessage), guarded on the row still being pending so a concurrent
	// cancel is never overwritten.
	MarkProcessed(ctx context.Context, schedule *Schedule) error
}

type TemplateRepository interface {
	Get(ctx context.Context, id int64) (Template, error)

	// ListForSending returns the templates the actor may schedule with,
	// ordered by category then type.
	ListForSending(ctx context.Context, actor Actor) ([]Template, error)
}

type OrganizationRepository interface {
	Get(ctx context.Context, id int64) (Organization, error)
}

type UserRepository interface {
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindOrgAdmin(ctx context.Context, organizationId int64) (User, error)
}
