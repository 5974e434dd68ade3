package mailscheduler

import "time"

const (
	TemplateCategoryService      = "service"
	TemplateCategoryLogin        = "login"
	TemplateCategoryNotification = "notification"
	TemplateCategoryFollowUp     = "follow_up"
	TemplateCategoryReminder     = "reminder"
)

// Template is owned by the template management side of the system, the
// engine only reads it. Subject and body may contain {{key}} placeholders.
type Template struct {
	Id int64 `json:"id"`

	Category string  `sql:",notnull" json:"category"`
	Type     string  `sql:",notnull" json:"type"`
	Name     *string `json:"name"`

	Subject string `sql:",notnull" json:"subject"`
	Body    string `sql:",notnull" json:"body"`

	// Nil means the template is global and usable across organizations.
	OrganizationId *int64 `json:"organizationId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
