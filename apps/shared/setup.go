// Package shared holds the dependency setup common to the API server and the admin CLI.
package shared

import (
	"database/sql"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
	"github.com/trezcool/rapor/core/user"
	"github.com/trezcool/rapor/services/email"
	"github.com/trezcool/rapor/services/logger"
	"github.com/trezcool/rapor/storage/database"
	"github.com/trezcool/rapor/storage/database/inmem"
	"github.com/trezcool/rapor/storage/database/sqlboiler"
	"github.com/trezcool/rapor/storage/database/sqlx"
)

// Stores are the report card storage backends selected by database.engine.
type Stores struct {
	DB        *sql.DB // nil for the memory engine
	Directory report.Directory
	Repo      report.Repository
}

func (s Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func NewLogger(conf *core.Config, component string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(os.Stdout, component, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func NewValidation() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// NewMailService prints emails to the console in debug mode and sends them through Sendgrid otherwise.
func NewMailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// OpenStores connects the storage backends. The Postgres database is created and migrated when needed.
func OpenStores(conf *core.Config) (Stores, error) {
	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.NewDB()
		return Stores{Directory: inmemdb.NewDirectory(db), Repo: inmemdb.NewReportRepository(db)}, nil

	case core.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return Stores{}, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(conf)
		if err != nil {
			return Stores{}, errors.Wrap(err, "opening database")
		}
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return Stores{}, errors.Wrap(err, "migrating database")
		}
		return Stores{DB: db, Directory: sqlxrepos.NewDirectory(db), Repo: boiledrepos.NewReportRepository(db)}, nil
	}
	return Stores{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func NewReportService(stores Stores, mailSvc core.EmailService, logger core.Logger, validate *validator.Validate) *report.Service {
	return report.NewService(report.ServiceDeps{
		Directory: stores.Directory,
		Repo:      stores.Repo,
		MailSvc:   mailSvc,
		Logger:    logger,
		Validate:  validate,
	})
}
