package gopg

import (
	"context"

	"github.com/go-pg/pg"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
)

func NewUserRepository(db *pg.DB) mailscheduler.UserRepository {
	return &userRepository{
		db: db,
	}
}

type userWrapper struct {
	TableName struct{} `sql:"users,alias:u" json:"-"`

	*mailscheduler.User
}

type userRepository struct {
	db *pg.DB
}

func (repo *userRepository) Get(ctx context.Context, id int64) (mailscheduler.User, error) {
	wrapped := &userWrapper{
		User: &mailscheduler.User{},
	}

	if err := repo.db.Model(wrapped).Where("id = ?", id).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.User, mailscheduler.UserNotFoundErr
		}

		return *wrapped.User, err
	}

	return *wrapped.User, nil
}

func (repo *userRepository) FindByEmail(ctx context.Context, email string) (mailscheduler.User, error) {
	wrapped := &userWrapper{
		User: &mailscheduler.User{},
	}

	err := repo.db.Model(wrapped).
		Where("LOWER(email) = LOWER(?)", email).
		Limit(1).
		Select()
	if err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.User, mailscheduler.UserNotFoundErr
		}

		return *wrapped.User, err
	}

	return *wrapped.User, nil
}

func (repo *userRepository) FindOrgAdmin(ctx context.Context, organizationId int64) (mailscheduler.User, error) {
	wrapped := &userWrapper{
		User: &mailscheduler.User{},
	}

	err := repo.db.Model(wrapped).
		Where("organization_id = ?", organizationId).
		Where("role = ?", mailscheduler.RoleOrgAdmin).
		Order("id ASC").
		Limit(1).
		Select()
	if err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.User, mailscheduler.UserNotFoundErr
		}

		return *wrapped.User, err
	}

	return *wrapped.User, nil
}
