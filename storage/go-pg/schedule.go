package gopg

import (
	"context"
	"time"

	"github.com/go-pg/pg"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
)

func NewScheduleRepository(db *pg.DB) mailscheduler.ScheduleRepository {
	return &scheduleRepository{
		db: db,
	}
}

type scheduleWrapper struct {
	TableName struct{} `sql:"email_schedules,alias:es" json:"-"`

	*mailscheduler.Schedule
}

type scheduleRepository struct {
	db *pg.DB
}

func (repo *scheduleRepository) CreateBatch(ctx context.Context, schedules []*mailscheduler.Schedule) error {
	return repo.db.RunInTransaction(func(tx *pg.Tx) error {
		for _, schedule := range schedules {
			if err := tx.Insert(&scheduleWrapper{Schedule: schedule}); err != nil {
				return err
			}
		}

		return nil
	})
}

func (repo *scheduleRepository) Get(ctx context.Context, id int64) (mailscheduler.Schedule, error) {
	wrapped := &scheduleWrapper{
		Schedule: &mailscheduler.Schedule{},
	}

	if err := repo.db.Model(wrapped).Where("id = ?", id).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.Schedule, mailscheduler.ScheduleNotFoundErr
		}

		return *wrapped.Schedule, err
	}

	return *wrapped.Schedule, nil
}

func (repo *scheduleRepository) GetDuePending(ctx context.Context, now time.Time) ([]mailscheduler.Schedule, error) {
	var wrapped []scheduleWrapper
	schedules := make([]mailscheduler.Schedule, 0)

	err := repo.db.Model(&wrapped).
		Where("status = ?", mailscheduler.SchedulePending).
		Where("scheduled_at <= ?", now).
		Order("scheduled_at ASC").
		Select()
	if err != nil && err != pg.ErrNoRows {
		return schedules, err
	}

	for _, s := range wrapped {
		schedules = append(schedules, *s.Schedule)
	}

	return schedules, nil
}

func (repo *scheduleRepository) Matching(ctx context.Context, criteria mailscheduler.ScheduleCriteria) ([]mailscheduler.Schedule, int, error) {
	var wrapped []scheduleWrapper
	schedules := make([]mailscheduler.Schedule, 0)

	builder := repo.db.Model(&wrapped).
		Offset(criteria.Offset).
		Limit(criteria.Limit).
		Order("scheduled_at DESC")

	if criteria.Status != "" {
		builder.Where("status = ?", criteria.Status)
	}

	if criteria.OrganizationId != nil {
		builder.Where("organization_id = ?", *criteria.OrganizationId)
	}

	count, err := builder.SelectAndCount()
	if err != nil && err != pg.ErrNoRows {
		return schedules, 0, err
	}

	for _, s := range wrapped {
		schedules = append(schedules, *s.Schedule)
	}

	return schedules, count, nil
}

func (repo *scheduleRepository) Transition(ctx context.Context, id int64, from, to mailscheduler.ScheduleStatus) error {
	result, err := repo.db.Model(&scheduleWrapper{Schedule: &mailscheduler.Schedule{}}).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, from).
		Update()
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return mailscheduler.ScheduleNotPendingErr
	}

	return nil
}

func (repo *scheduleRepository) MarkProcessed(ctx context.Context, schedule *mailscheduler.Schedule) error {
	schedule.UpdatedAt = time.Now()

	result, err := repo.db.Model(&scheduleWrapper{Schedule: schedule}).
		Column("status", "sent_at", "error_message", "updated_at").
		Where("id = ? AND status = ?", schedule.Id, mailscheduler.SchedulePending).
		Update()
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return mailscheduler.ScheduleNotPendingErr
	}

	return nil
}
