package gopg

import (
	"context"

	"github.com/go-pg/pg"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
)

func NewOrganizationRepository(db *pg.DB) mailscheduler.OrganizationRepository {
	return &organizationRepository{
		db: db,
	}
}

type organizationWrapper struct {
	TableName struct{} `sql:"organizations,alias:o" json:"-"`

	*mailscheduler.Organization
}

type organizationRepository struct {
	db *pg.DB
}

func (repo *organizationRepository) Get(ctx context.Context, id int64) (mailscheduler.Organization, error) {
	wrapped := &organizationWrapper{
		Organization: &mailscheduler.Organization{},
	}

	if err := repo.db.Model(wrapped).Where("id = ?", id).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.Organization, mailscheduler.OrganizationNotFoundErr
		}

		return *wrapped.Organization, err
	}

	return *wrapped.Organization, nil
}
