package mailscheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestScanner(t *testing.T) {
	suite.Run(t, new(scannerTestSuite))
}

type scannerTestSuite struct {
	suite.Suite

	scheduleRepo *scheduleRepository
	templateRepo *templateRepository
	orgRepo      *organizationRepository
	userRepo     *userRepository
	transport    *recordingTransport
}

func (suite *scannerTestSuite) SetupTest() {
	suite.scheduleRepo = newScheduleRepository()
	suite.templateRepo = newTemplateRepository()
	suite.orgRepo = newOrganizationRepository()
	suite.userRepo = newUserRepository()
	suite.transport = newRecordingTransport()
}

func (suite *scannerTestSuite) newApplication(options ...AppOption) *application {
	base := []AppOption{
		SetScheduleRepo(suite.scheduleRepo),
		SetTemplateRepo(suite.templateRepo),
		SetOrganizationRepo(suite.orgRepo),
		SetUserRepo(suite.userRepo),
		SetEmailTransport(suite.transport),
		SetSendDelay(5 * time.Millisecond),
	}

	app, err := NewApplication(append(base, options...)...)
	if !assert.NoError(suite.T(), err, "Failed to create the application") {
		suite.T().FailNow()
	}

	return app.(*application)
}

func (suite *scannerTestSuite) seedDue(schedule Schedule) int64 {
	if schedule.Status == "" {
		schedule.Status = SchedulePending
	}
	if schedule.ScheduledAt.IsZero() {
		schedule.ScheduledAt = time.Now().Add(-time.Minute)
	}

	return suite.scheduleRepo.seed(schedule)
}

func (suite *scannerTestSuite) TestPartialFailureStillCountsAsSent() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})
	suite.transport.failRecipient("b@example.com", errors.New("mailbox full"))

	id := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com", "b@example.com", "c@example.com"},
	})

	app := suite.newApplication()

	result, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	assert.Equal(suite.T(), ScanResult{Processed: 1, Sent: 2, Failed: 1}, result)

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 3) {
		// Deliveries are paced, only the first one goes out immediately.
		assert.GreaterOrEqual(suite.T(), sends[1].At.Sub(sends[0].At), 5*time.Millisecond)
		assert.GreaterOrEqual(suite.T(), sends[2].At.Sub(sends[1].At), 5*time.Millisecond)
	}

	stored, err := suite.scheduleRepo.Get(context.Background(), id)
	if assert.NoError(suite.T(), err) {
		assert.Equal(suite.T(), ScheduleSent, stored.Status)
		assert.NotNil(suite.T(), stored.SentAt)
		if assert.NotNil(suite.T(), stored.ErrorMessage) {
			assert.Equal(suite.T(), "mailbox full", *stored.ErrorMessage)
		}
	}
}

func (suite *scannerTestSuite) TestAllRecipientsFailing() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})
	suite.transport.failRecipient("a@example.com", errors.New("rejected"))

	id := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
	})

	app := suite.newApplication()

	result, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	assert.Equal(suite.T(), ScanResult{Processed: 1, Sent: 0, Failed: 1}, result)

	stored, _ := suite.scheduleRepo.Get(context.Background(), id)
	assert.Equal(suite.T(), ScheduleFailed, stored.Status)
	if assert.NotNil(suite.T(), stored.ErrorMessage) {
		assert.Equal(suite.T(), "rejected", *stored.ErrorMessage)
	}
}

func (suite *scannerTestSuite) TestMissingTemplateFailsTheSchedule() {
	id := suite.seedDue(Schedule{
		TemplateId:      99,
		RecipientEmails: []string{"a@example.com"},
	})

	app := suite.newApplication()

	result, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	assert.Equal(suite.T(), ScanResult{Processed: 1, Sent: 0, Failed: 1}, result)
	assert.Empty(suite.T(), suite.transport.sent())

	stored, _ := suite.scheduleRepo.Get(context.Background(), id)
	assert.Equal(suite.T(), ScheduleFailed, stored.Status)
	if assert.NotNil(suite.T(), stored.ErrorMessage) {
		assert.Equal(suite.T(), "Template not found", *stored.ErrorMessage)
	}
}

func (suite *scannerTestSuite) TestFutureSchedulesAreLeftAlone() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})

	id := suite.scheduleRepo.seed(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
		ScheduledAt:     time.Now().Add(time.Hour),
		Status:          SchedulePending,
	})

	app := suite.newApplication()

	result, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	assert.Equal(suite.T(), 0, result.Processed)
	assert.Empty(suite.T(), suite.transport.sent())

	stored, _ := suite.scheduleRepo.Get(context.Background(), id)
	assert.Equal(suite.T(), SchedulePending, stored.Status)
}

func (suite *scannerTestSuite) TestDueSchedulesProcessedInOrder() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})

	suite.scheduleRepo.seed(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"second@example.com"},
		ScheduledAt:     time.Now().Add(-time.Minute),
		Status:          SchedulePending,
	})
	suite.scheduleRepo.seed(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"first@example.com"},
		ScheduledAt:     time.Now().Add(-time.Hour),
		Status:          SchedulePending,
	})

	app := suite.newApplication()

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 2) {
		assert.Equal(suite.T(), "first@example.com", sends[0].To)
		assert.Equal(suite.T(), "second@example.com", sends[1].To)
	}
}

func (suite *scannerTestSuite) TestOrganizationVariablesAreInjected() {
	orgId := int64(7)
	suite.templateRepo.add(Template{Id: 1, Subject: "News from {{org_name}}", Body: "Regards, {{org_admin_name}}"})
	suite.orgRepo.add(Organization{Id: orgId, Name: "Acme"})
	suite.userRepo.add(User{Id: 5, Name: "Jane", Email: "jane@acme.test", Role: RoleOrgAdmin, OrganizationId: &orgId})

	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
		OrganizationId:  &orgId,
	})

	app := suite.newApplication()

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 1) {
		assert.Equal(suite.T(), "News from Acme", sends[0].Subject)
		assert.Contains(suite.T(), sends[0].Text, "Regards, Jane")
		assert.Equal(suite.T(), "Jane", sends[0].FromName)
	}
}

func (suite *scannerTestSuite) TestCreatorNameUsedWhenOrgHasNoAdmin() {
	orgId := int64(7)
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "{{org_admin_name}}"})
	suite.orgRepo.add(Organization{Id: orgId, Name: "Acme"})
	suite.userRepo.add(User{Id: 9, Email: "creator@acme.test", Role: RoleOrgEmployee, OrganizationId: &orgId})

	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
		OrganizationId:  &orgId,
		CreatedBy:       9,
	})

	app := suite.newApplication()

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 1) {
		// The creator has no name set, the email address stands in.
		assert.Contains(suite.T(), sends[0].Text, "creator@acme.test")
		assert.Equal(suite.T(), "creator@acme.test", sends[0].FromName)
	}
}

func (suite *scannerTestSuite) TestLoginTemplateRecoversPassword() {
	cipher := NewPasswordCipher(CryptoConfig{SecretKey: "app-secret"})

	encrypted, ok := cipher.Encrypt("hunter2")
	if !assert.True(suite.T(), ok) {
		return
	}

	suite.templateRepo.add(Template{Id: 1, Category: TemplateCategoryLogin, Subject: "Your login", Body: "Password: {{temp_password}}"})
	suite.userRepo.add(User{Id: 5, Email: "a@example.com", EncryptedPassword: encrypted})

	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
	})

	app := suite.newApplication(SetPasswordCipher(cipher))

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 1) {
		assert.Contains(suite.T(), sends[0].Text, "Password: hunter2")
	}
}

func (suite *scannerTestSuite) TestCallerSuppliedPasswordIsNotOverwritten() {
	cipher := NewPasswordCipher(CryptoConfig{SecretKey: "app-secret"})

	encrypted, _ := cipher.Encrypt("stored-password")

	suite.templateRepo.add(Template{Id: 1, Category: TemplateCategoryLogin, Subject: "s", Body: "{{temp_password}}"})
	suite.userRepo.add(User{Id: 5, Email: "a@example.com", EncryptedPassword: encrypted})

	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
		Variables:       map[string]string{"temp_password": "fresh-password"},
	})

	app := suite.newApplication(SetPasswordCipher(cipher))

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 1) {
		assert.Contains(suite.T(), sends[0].Text, "fresh-password")
	}
}

func (suite *scannerTestSuite) TestCancelRacingTheScannerKeepsCancelledState() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})

	id := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
	})

	app := suite.newApplication()

	// Cancel lands while the scanner is mid delivery.
	suite.transport.onSend = func(string) {
		_ = suite.scheduleRepo.Transition(context.Background(), id, SchedulePending, ScheduleCancelled)
	}

	_, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	stored, _ := suite.scheduleRepo.Get(context.Background(), id)
	assert.Equal(suite.T(), ScheduleCancelled, stored.Status)
	assert.Nil(suite.T(), stored.SentAt)
}

func (suite *scannerTestSuite) TestScanSkippedWhileDraining() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})
	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
	})

	app := suite.newApplication()

	if !assert.True(suite.T(), app.startScan()) {
		return
	}
	defer app.finishScan()

	app.scanOnce(context.Background())

	assert.Empty(suite.T(), suite.transport.sent())
}

func (suite *scannerTestSuite) TestPanicInOneScheduleDoesNotStopTheBatch() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})
	suite.templateRepo.panicOn = 99

	exploding := suite.seedDue(Schedule{
		TemplateId:      99,
		RecipientEmails: []string{"a@example.com"},
		ScheduledAt:     time.Now().Add(-2 * time.Hour),
	})
	healthy := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"b@example.com"},
		ScheduledAt:     time.Now().Add(-time.Hour),
	})

	app := suite.newApplication()

	result, err := app.ProcessDueSchedules(context.Background())
	if !assert.NoError(suite.T(), err) {
		return
	}

	assert.Equal(suite.T(), ScanResult{Processed: 2, Sent: 1, Failed: 1}, result)

	sends := suite.transport.sent()
	if assert.Len(suite.T(), sends, 1) {
		assert.Equal(suite.T(), "b@example.com", sends[0].To)
	}

	stored, _ := suite.scheduleRepo.Get(context.Background(), exploding)
	assert.Equal(suite.T(), ScheduleFailed, stored.Status)
	if assert.NotNil(suite.T(), stored.ErrorMessage) {
		assert.Contains(suite.T(), *stored.ErrorMessage, "panic:")
	}

	stored, _ = suite.scheduleRepo.Get(context.Background(), healthy)
	assert.Equal(suite.T(), ScheduleSent, stored.Status)
}

func (suite *scannerTestSuite) TestShutdownMidRowLeavesSchedulePending() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})

	id := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com", "b@example.com"},
	})

	app := suite.newApplication()

	ctx, cancel := context.WithCancel(context.Background())
	suite.transport.onSend = func(string) {
		cancel()
	}

	_, err := app.ProcessDueSchedules(ctx)
	assert.Equal(suite.T(), context.Canceled, err)

	// Only the first recipient went out, the pause before the second saw
	// the cancellation.
	assert.Len(suite.T(), suite.transport.sent(), 1)

	stored, _ := suite.scheduleRepo.Get(context.Background(), id)
	assert.Equal(suite.T(), SchedulePending, stored.Status)
	assert.Nil(suite.T(), stored.SentAt)
	assert.Nil(suite.T(), stored.ErrorMessage)
}

func (suite *scannerTestSuite) TestCancelledContextStopsTheBatch() {
	suite.templateRepo.add(Template{Id: 1, Subject: "s", Body: "b"})

	suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"a@example.com"},
		ScheduledAt:     time.Now().Add(-2 * time.Hour),
	})
	untouched := suite.seedDue(Schedule{
		TemplateId:      1,
		RecipientEmails: []string{"b@example.com"},
		ScheduledAt:     time.Now().Add(-time.Hour),
	})

	app := suite.newApplication()

	ctx, cancel := context.WithCancel(context.Background())
	suite.transport.onSend = func(string) {
		cancel()
	}

	_, err := app.ProcessDueSchedules(ctx)
	assert.Equal(suite.T(), context.Canceled, err)

	sends := suite.transport.sent()
	assert.Len(suite.T(), sends, 1)

	stored, _ := suite.scheduleRepo.Get(context.Background(), untouched)
	assert.Equal(suite.T(), SchedulePending, stored.Status)
}
