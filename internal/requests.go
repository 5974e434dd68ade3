package internal

type ScheduleRequest struct {
	Type string `json:"type"`

	Date     string   `json:"date"`
	FromDate string   `json:"fromDate"`
	ToDate   string   `json:"toDate"`
	Dates    []string `json:"dates"`

	Times          []string `json:"times"`
	TimeZoneOffset string   `json:"timeZoneOffset"`
}

type ScheduleEmailRequest struct {
	TemplateId      int64             `json:"templateId"`
	RecipientEmails []string          `json:"recipientEmails"`
	Variables       map[string]string `json:"variables"`
	Schedule        ScheduleRequest   `json:"schedule"`
}

type PreviewTemplateRequest struct {
	Variables map[string]string `json:"variables"`
}

type TestSendRequest struct {
	Target    string            `json:"target"`
	Variables map[string]string `json:"variables"`
}
