package gopg

import (
	"context"

	"github.com/go-pg/pg"
	"github.com/go-pg/pg/orm"
	mailscheduler "github.com/interactive-solutions/go-mailscheduler"
)

func NewTemplateRepository(db *pg.DB) mailscheduler.TemplateRepository {
	return &templateRepository{
		db: db,
	}
}

type templateWrapper struct {
	TableName struct{} `sql:"email_templates,alias:et" json:"-"`

	*mailscheduler.Template
}

type templateRepository struct {
	db *pg.DB
}

func (repo *templateRepository) Get(ctx context.Context, id int64) (mailscheduler.Template, error) {
	wrapped := &templateWrapper{
		Template: &mailscheduler.Template{},
	}

	if err := repo.db.Model(wrapped).Where("id = ?", id).Select(); err != nil {
		if err == pg.ErrNoRows {
			return *wrapped.Template, mailscheduler.TemplateNotFoundErr
		}

		return *wrapped.Template, err
	}

	return *wrapped.Template, nil
}

func (repo *templateRepository) ListForSending(ctx context.Context, actor mailscheduler.Actor) ([]mailscheduler.Template, error) {
	var wrapped []templateWrapper
	templates := make([]mailscheduler.Template, 0)

	builder := repo.db.Model(&wrapped).
		Order("category ASC").
		Order("type ASC")

	switch {
	case actor.IsMasterAdmin():
		builder.Where("organization_id IS NULL")

	case actor.OrganizationId != nil:
		builder.WhereGroup(func(q *orm.Query) (*orm.Query, error) {
			return q.Where("organization_id IS NULL").WhereOr("organization_id = ?", *actor.OrganizationId), nil
		})

	default:
		builder.Where("organization_id IS NULL")
	}

	if err := builder.Select(); err != nil && err != pg.ErrNoRows {
		return templates, err
	}

	for _, t := range wrapped {
		templates = append(templates, *t.Template)
	}

	return templates, nil
}
