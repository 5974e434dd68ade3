package mailscheduler

const (
	RoleMasterAdmin = "MASTER_ADMIN"
	RoleOrgAdmin    = "ORG_ADMIN"
	RoleCaa         = "CAA"
	RoleOrgEmployee = "ORG_EMPLOYEE"
)

// Actor is the already authenticated caller of a core operation. It is
// always passed in explicitly, never read from ambient request state.
type Actor struct {
	UserId         int64  `json:"userId"`
	Role           string `json:"role"`
	OrganizationId *int64 `json:"organizationId"`
}

func (a Actor) IsMasterAdmin() bool {
	return a.Role == RoleMasterAdmin
}

// CanUseTemplateForSending is the submission rule: a master admin may only
// schedule global templates, an organization actor may use a template that
// is global or owned by their own organization.
func (a Actor) CanUseTemplateForSending(template Template) bool {
	if a.IsMasterAdmin() {
		return template.OrganizationId == nil
	}

	if template.OrganizationId == nil {
		return true
	}

	return a.OrganizationId != nil && *a.OrganizationId == *template.OrganizationId
}

// CanAccessTemplate is the broader read rule used by previews and test
// sends.
func (a Actor) CanAccessTemplate(template Template) bool {
	if a.IsMasterAdmin() || template.OrganizationId == nil {
		return true
	}

	return a.OrganizationId != nil && *a.OrganizationId == *template.OrganizationId
}

func (a Actor) CanAccessSchedule(schedule Schedule) bool {
	if a.IsMasterAdmin() {
		return true
	}

	if a.OrganizationId == nil || schedule.OrganizationId == nil {
		return false
	}

	return *a.OrganizationId == *schedule.OrganizationId
}
