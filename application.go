package mailscheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const UserAgent = "InteractiveSolutions/GoMailScheduler-1.0"

type Application interface {
	HttpHandler() *HttpHandler

	SubmitSchedule(ctx context.Context, req SubmitScheduleRequest, actor Actor) (SubmitScheduleResult, error)
	ListSchedules(ctx context.Context, actor Actor, filter ListSchedulesFilter) ([]Schedule, error)
	GetSchedule(ctx context.Context, id int64, actor Actor) (Schedule, error)
	CancelSchedule(ctx context.Context, id int64, actor Actor) (Schedule, error)

	RenderPreview(ctx context.Context, templateId int64, variables map[string]string, actor Actor) (Preview, error)
	SendTestEmail(ctx context.Context, to string, templateId int64, variables map[string]string, actor Actor) error

	ProcessDueSchedules(ctx context.Context) (ScanResult, error)
	Run(ctx context.Context) error
	Shutdown(ctx context.Context)
}

type SubmitScheduleRequest struct {
	TemplateId      int64             `json:"templateId"`
	RecipientEmails []string          `json:"recipientEmails"`
	Variables       map[string]string `json:"variables"`
	Spec            ScheduleSpec      `json:"schedule"`
}

type SubmitScheduleResult struct {
	Created   int        `json:"created"`
	Schedules []Schedule `json:"schedules"`
}

type ListSchedulesFilter struct {
	Status         ScheduleStatus
	OrganizationId *int64

	Offset int
	Limit  int
}

type Preview struct {
	Subject string `json:"subject"`
	Html    string `json:"html"`
	Text    string `json:"text"`
}

type AppOption func(a *application)

func SetLogger(logger logrus.FieldLogger) AppOption {
	return func(a *application) {
		a.logger = logger
	}
}

func SetScheduleRepo(repo ScheduleRepository) AppOption {
	return func(a *application) {
		a.scheduleRepo = repo
	}
}

func SetTemplateRepo(repo TemplateRepository) AppOption {
	return func(a *application) {
		a.templateRepo = repo
	}
}

func SetOrganizationRepo(repo OrganizationRepository) AppOption {
	return func(a *application) {
		a.organizationRepo = repo
	}
}

func SetUserRepo(repo UserRepository) AppOption {
	return func(a *application) {
		a.userRepo = repo
	}
}

func SetEmailTransport(transport EmailTransport) AppOption {
	return func(a *application) {
		a.transport = transport
	}
}

func SetPasswordCipher(cipher *PasswordCipher) AppOption {
	return func(a *application) {
		a.cipher = cipher
	}
}

// SetSendDelay changes the pause inserted between two sends of the same
// schedule, 2s by default to respect outbound rate limits.
func SetSendDelay(delay time.Duration) AppOption {
	return func(a *application) {
		a.sendDelay = delay
	}
}

func SetScanInterval(interval time.Duration) AppOption {
	return func(a *application) {
		a.scanInterval = interval
	}
}

// SetClock overrides the time source, test seam only.
func SetClock(clock func() time.Time) AppOption {
	return func(a *application) {
		a.clock = clock
	}
}

type application struct {
	logger logrus.FieldLogger

	scheduleRepo     ScheduleRepository
	templateRepo     TemplateRepository
	organizationRepo OrganizationRepository
	userRepo         UserRepository

	transport EmailTransport
	cipher    *PasswordCipher

	sendDelay    time.Duration
	scanInterval time.Duration
	clock        func() time.Time

	scanning  int32
	draining  sync.WaitGroup
	runMu     sync.Mutex
	runCancel context.CancelFunc
}

func NewApplication(options ...AppOption) (Application, error) {
	app := &application{
		logger: logrus.New(),

		cipher: NewPasswordCipher(CryptoConfig{}),

		sendDelay:    2 * time.Second,
		scanInterval: time.Minute,
		clock:        time.Now,
	}

	for _, option := range options {
		option(app)
	}

	if err := app.ensureUsableConfiguration(); err != nil {
		return app, err
	}

	return app, nil
}

func (a *application) ensureUsableConfiguration() error {
	if a.scheduleRepo == nil {
		return errors.New("Missing schedule repository")
	}

	if a.templateRepo == nil {
		return errors.New("Missing template repository")
	}

	if a.transport == nil {
		return errors.New("Missing email transport")
	}

	return nil
}

func (a *application) HttpHandler() *HttpHandler {
	return &HttpHandler{
		app: a,
	}
}

func (a *application) SubmitSchedule(ctx context.Context, req SubmitScheduleRequest, actor Actor) (SubmitScheduleResult, error) {
	result := SubmitScheduleResult{}

	if len(req.RecipientEmails) == 0 {
		return result, NoRecipientsErr
	}

	template, err := a.templateRepo.Get(ctx, req.TemplateId)
	if err != nil {
		return result, err
	}

	if !actor.CanUseTemplateForSending(template) {
		return result, TemplateNotUsableErr
	}

	slots, err := ExpandSpec(req.Spec)
	if err != nil {
		return result, err
	}

	if len(slots) == 0 {
		return result, EmptyScheduleErr
	}

	// A master admin schedules on behalf of the template's organization,
	// everyone else on behalf of their own.
	organizationId := actor.OrganizationId
	if actor.IsMasterAdmin() {
		organizationId = template.OrganizationId
	}

	recipients := dedupeStrings(req.RecipientEmails)
	now := a.clock()

	schedules := make([]*Schedule, 0, len(slots))
	for _, slot := range slots {
		scheduledAt, err := SlotTime(slot.Date, slot.Time, req.Spec.TimeZoneOffset)
		if err != nil {
			return result, err
		}

		schedules = append(schedules, &Schedule{
			TemplateId:      req.TemplateId,
			RecipientEmails: recipients,
			Variables:       req.Variables,
			ScheduledAt:     scheduledAt,
			Status:          SchedulePending,
			OrganizationId:  organizationId,
			CreatedBy:       actor.UserId,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if err := a.scheduleRepo.CreateBatch(ctx, schedules); err != nil {
		return result, errors.Wrap(err, "Failed to persist schedules")
	}

	for _, schedule := range schedules {
		result.Schedules = append(result.Schedules, *schedule)
	}
	result.Created = len(result.Schedules)

	a.logger.
		WithField("templateId", req.TemplateId).
		WithField("created", result.Created).
		Info("schedule submitted")

	return result, nil
}

func (a *application) ListSchedules(ctx context.Context, actor Actor, filter ListSchedulesFilter) ([]Schedule, error) {
	criteria := ScheduleCriteria{
		Status: filter.Status,
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}

	if actor.IsMasterAdmin() {
		criteria.OrganizationId = filter.OrganizationId
	} else {
		if actor.OrganizationId == nil {
			return []Schedule{}, nil
		}

		criteria.OrganizationId = actor.OrganizationId
	}

	schedules, _, err := a.scheduleRepo.Matching(ctx, criteria)

	return schedules, err
}

func (a *application) GetSchedule(ctx context.Context, id int64, actor Actor) (Schedule, error) {
	schedule, err := a.scheduleRepo.Get(ctx, id)
	if err != nil {
		return schedule, err
	}

	// Visibility is re-derived on every call, never cached.
	if !actor.CanAccessSchedule(schedule) {
		return Schedule{}, AccessDeniedErr
	}

	return schedule, nil
}

func (a *application) CancelSchedule(ctx context.Context, id int64, actor Actor) (Schedule, error) {
	schedule, err := a.GetSchedule(ctx, id, actor)
	if err != nil {
		return schedule, err
	}

	if err := a.scheduleRepo.Transition(ctx, id, SchedulePending, ScheduleCancelled); err != nil {
		return schedule, err
	}

	schedule.Status = ScheduleCancelled

	return schedule, nil
}

func (a *application) RenderPreview(ctx context.Context, templateId int64, variables map[string]string, actor Actor) (Preview, error) {
	template, err := a.templateRepo.Get(ctx, templateId)
	if err != nil {
		return Preview{}, err
	}

	if !actor.CanAccessTemplate(template) {
		return Preview{}, AccessDeniedErr
	}

	enriched, _ := a.enrichActorVariables(ctx, variables, actor)

	subject := SubstituteVariables(template.Subject, enriched)
	body := SubstituteVariables(template.Body, enriched)

	return Preview{
		Subject: subject,
		Html:    ToEmailHTML(subject, body),
		Text:    ToPlainText(body),
	}, nil
}

func (a *application) SendTestEmail(ctx context.Context, to string, templateId int64, variables map[string]string, actor Actor) error {
	template, err := a.templateRepo.Get(ctx, templateId)
	if err != nil {
		return err
	}

	if !actor.CanAccessTemplate(template) {
		return AccessDeniedErr
	}

	enriched, fromName := a.enrichActorVariables(ctx, variables, actor)

	subject := SubstituteVariables(template.Subject, enriched)
	body := SubstituteVariables(template.Body, enriched)

	return a.transport.Send(ctx, to, subject, ToPlainText(body), ToEmailHTML(subject, body), fromName)
}

// enrichActorVariables injects org_name and org_admin_name from the acting
// user's organization, mirroring what the scanner does for stored rows.
func (a *application) enrichActorVariables(ctx context.Context, variables map[string]string, actor Actor) (map[string]string, string) {
	enriched := copyVariables(variables)

	if actor.OrganizationId == nil {
		return enriched, ""
	}

	orgName := ""
	if a.organizationRepo != nil {
		if org, err := a.organizationRepo.Get(ctx, *actor.OrganizationId); err == nil {
			orgName = org.Name
		}
	}
	enriched["org_name"] = orgName

	fromName := ""
	if a.userRepo != nil {
		if user, err := a.userRepo.Get(ctx, actor.UserId); err == nil {
			fromName = user.DisplayName()
		}
	}
	enriched["org_admin_name"] = fromName

	return enriched, fromName
}

func (a *application) Shutdown(ctx context.Context) {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	drained := make(chan struct{})
	go func() {
		a.draining.Wait()
		close(drained)
	}()

	select {
	case <-ctx.Done():
	case <-drained:
	}
}

func (a *application) startScan() bool {
	return atomic.CompareAndSwapInt32(&a.scanning, 0, 1)
}

func (a *application) finishScan() {
	atomic.StoreInt32(&a.scanning, 0)
}

func copyVariables(variables map[string]string) map[string]string {
	copied := make(map[string]string, len(variables)+2)
	for key, value := range variables {
		copied[key] = value
	}

	return copied
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	deduped := make([]string, 0, len(values))

	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}

		seen[value] = struct{}{}
		deduped = append(deduped, value)
	}

	return deduped
}
