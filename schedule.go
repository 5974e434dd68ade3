package mailscheduler

import "time"

type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleSent      ScheduleStatus = "sent"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted from s.
func (s ScheduleStatus) Terminal() bool {
	return s == ScheduleSent || s == ScheduleFailed || s == ScheduleCancelled
}

// Schedule is one persisted delivery job, corresponding to exactly one
// expanded date and time slot. It carries its own recipient list and
// template reference and is mutated at most once after creation, by the
// scanner or by an explicit cancel.
type Schedule struct {
	Id int64 `json:"id"`

	TemplateId int64 `json:"templateId"`

	// Send order is the stored order, duplicates are removed at submission.
	RecipientEmails []string          `json:"recipientEmails"`
	Variables       map[string]string `json:"variables"`

	ScheduledAt time.Time      `sql:",notnull" json:"scheduledAt"`
	Status      ScheduleStatus `sql:",notnull" json:"status"`

	// Nil means the schedule is global and only reachable through master
	// admin filters. Fixed for the lifetime of the row.
	OrganizationId *int64 `json:"organizationId"`
	CreatedBy      int64  `json:"createdBy"`

	SentAt       *time.Time `json:"sentAt"`
	ErrorMessage *string    `json:"errorMessage"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
