package mailscheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const templateMissingMessage = "Template not found"

type ScanResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Run wakes on the configured interval, processes the whole due batch to
// completion and goes idle until the next tick. A tick that fires while a
// previous batch is still draining is skipped, two overlapping runs could
// double send a row still marked pending. Run returns when ctx is
// cancelled.
func (a *application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	a.runMu.Lock()
	a.runCancel = cancel
	a.runMu.Unlock()

	ticker := time.NewTicker(a.scanInterval)
	defer ticker.Stop()

	a.logger.WithField("interval", a.scanInterval).Info("schedule scanner started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("schedule scanner shutting down")
			return ctx.Err()

		case <-ticker.C:
			a.scanOnce(ctx)
		}
	}
}

func (a *application) scanOnce(ctx context.Context) {
	if !a.startScan() {
		a.logger.Warn("previous scan still draining, skipping tick")
		return
	}
	defer a.finishScan()

	a.draining.Add(1)
	defer a.draining.Done()

	logger := a.logger.WithField("runId", uuid.New().String())

	result, err := a.ProcessDueSchedules(ctx)
	if err != nil && err != context.Canceled {
		logger.WithError(err).Error("failed to process due schedules")
		return
	}

	if result.Processed > 0 {
		logger.
			WithField("processed", result.Processed).
			WithField("sent", result.Sent).
			WithField("failed", result.Failed).
			Info("processed due schedules")
	}
}

// ProcessDueSchedules loads every pending row whose scheduledAt is at or
// before now, ascending, and attempts delivery for each. One row's failure
// never aborts the rest of the batch. Sent counts successful recipient
// deliveries, Failed counts failed recipients plus rows skipped for a
// missing template.
func (a *application) ProcessDueSchedules(ctx context.Context) (ScanResult, error) {
	result := ScanResult{}

	due, err := a.scheduleRepo.GetDuePending(ctx, a.clock())
	if err != nil {
		return result, errors.Wrap(err, "Failed to load due schedules")
	}

	result.Processed = len(due)

	for i := range due {
		sent, failed := a.processSchedule(ctx, &due[i])
		result.Sent += sent
		result.Failed += failed

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	return result, nil
}

// processSchedule attempts delivery for one due row and writes back its
// terminal status. Failures, including panics, are contained so the rest
// of the batch still gets scanned. A cancellation between two recipients
// skips the write back entirely, keeping the row pending.
func (a *application) processSchedule(ctx context.Context, schedule *Schedule) (sent, failed int) {
	logger := a.logger.WithField("scheduleId", schedule.Id)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("panic while processing schedule")
			a.writeOutcome(ctx, logger, schedule, false, stringPtr(fmt.Sprintf("panic: %v", r)))
			failed++
		}
	}()

	template, err := a.templateRepo.Get(ctx, schedule.TemplateId)
	if err != nil {
		logger.WithError(err).Warn("template missing for due schedule")
		a.writeOutcome(ctx, logger, schedule, false, stringPtr(templateMissingMessage))
		return 0, 1
	}

	variables, fromName := a.scheduleVariables(ctx, schedule)

	if template.Category == TemplateCategoryLogin {
		a.injectRecoveredPassword(ctx, schedule, variables)
	}

	subject := SubstituteVariables(template.Subject, variables)
	body := SubstituteVariables(template.Body, variables)
	html := ToEmailHTML(subject, body)
	text := ToPlainText(body)

	anySent := false
	var lastError *string

	for i, to := range schedule.RecipientEmails {
		// Pace outbound sends, the first recipient goes out immediately. A
		// shutdown during the pause stops before the next send, never mid
		// send. The row is left pending so the next scan retries it, already
		// delivered recipients may receive the message twice.
		if i > 0 && !a.pause(ctx) {
			logger.Info("delivery interrupted, schedule left pending")
			return sent, failed
		}

		if err := a.transport.Send(ctx, to, subject, text, html, fromName); err != nil {
			logger.
				WithField("recipient", to).
				WithError(err).
				Warn("failed to send scheduled email")

			message := err.Error()
			lastError = &message
			failed++

			continue
		}

		anySent = true
		sent++
	}

	a.writeOutcome(ctx, logger, schedule, anySent, lastError)

	return sent, failed
}

// writeOutcome stamps the terminal state of a processed row. The write is
// guarded on the row still being pending, a cancel that raced the scanner
// keeps its cancelled state.
func (a *application) writeOutcome(ctx context.Context, logger logrus.FieldLogger, schedule *Schedule, anySent bool, lastError *string) {
	now := a.clock()

	schedule.Status = ScheduleFailed
	if anySent {
		schedule.Status = ScheduleSent
	}
	schedule.SentAt = &now
	schedule.ErrorMessage = lastError

	switch err := a.scheduleRepo.MarkProcessed(ctx, schedule); err {
	case nil:

	case ScheduleNotPendingErr:
		logger.Info("schedule no longer pending, outcome discarded")

	default:
		logger.WithError(err).Error("failed to record schedule outcome")
	}
}

// scheduleVariables copies the stored variables and, for rows owned by an
// organization, injects org_name and org_admin_name. The admin name
// doubles as the outgoing display name.
func (a *application) scheduleVariables(ctx context.Context, schedule *Schedule) (map[string]string, string) {
	variables := copyVariables(schedule.Variables)

	if schedule.OrganizationId == nil {
		return variables, ""
	}

	orgName := ""
	if a.organizationRepo != nil {
		if org, err := a.organizationRepo.Get(ctx, *schedule.OrganizationId); err == nil {
			orgName = org.Name
		}
	}
	variables["org_name"] = orgName

	fromName := ""
	if a.userRepo != nil {
		if admin, err := a.userRepo.FindOrgAdmin(ctx, *schedule.OrganizationId); err == nil {
			fromName = admin.DisplayName()
		} else if creator, err := a.userRepo.Get(ctx, schedule.CreatedBy); err == nil {
			fromName = creator.DisplayName()
		}
	}
	variables["org_admin_name"] = fromName

	return variables, fromName
}

// injectRecoveredPassword fills temp_password for login credential
// templates from the first recipient's stored encrypted password, when the
// cipher is configured and the caller did not supply one.
func (a *application) injectRecoveredPassword(ctx context.Context, schedule *Schedule, variables map[string]string) {
	if _, ok := variables["temp_password"]; ok {
		return
	}

	if a.userRepo == nil || !a.cipher.Enabled() || len(schedule.RecipientEmails) == 0 {
		return
	}

	user, err := a.userRepo.FindByEmail(ctx, schedule.RecipientEmails[0])
	if err != nil || user.EncryptedPassword == "" {
		return
	}

	if plain, ok := a.cipher.Decrypt(user.EncryptedPassword); ok {
		variables["temp_password"] = plain
	}
}

// pause waits the configured inter message delay, returning false when the
// context is cancelled first.
func (a *application) pause(ctx context.Context) bool {
	timer := time.NewTimer(a.sendDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false

	case <-timer.C:
		return true
	}
}

func stringPtr(s string) *string {
	return &s
}
