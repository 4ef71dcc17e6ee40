// Package shared wires the stores and services used by the API server and the admin CLI.
package shared

import (
	"context"
	"fmt"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
	cachesvc "github.com/trezcool/feeledger/services/cache"
	emailsvc "github.com/trezcool/feeledger/services/email"
	eventsvc "github.com/trezcool/feeledger/services/events"
	"github.com/trezcool/feeledger/services/phonepe"
	"github.com/trezcool/feeledger/storage/database"
	inmemdb "github.com/trezcool/feeledger/storage/database/inmem"
	"github.com/trezcool/feeledger/storage/database/postgres"
)

type (
	Stores struct {
		DB *sqlx.DB // nil on the memory engine

		Tx           core.TxRunner
		Orgs         tenant.OrganizationRepository
		Users        user.Repository
		Fees         fee.Repository
		Payments     payment.Repository
		Transactions gateway.Repository
		Reports      report.Repository
	}

	App struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Stores     Stores

		Resolver   *tenant.Resolver
		UserSvc    *user.Service
		FeeSvc     *fee.Service
		Recorder   *payment.Recorder
		Reconciler *gateway.Reconciler
		ReportSvc  *report.Service

		closers []func() error
	}
)

// OpenStores opens the configured storage engine; postgres databases are created and migrated first.
func OpenStores(ctx context.Context, conf *core.Config) (Stores, error) {
	switch conf.Database.Storage {
	case core.StorageMemory:
		db := inmemdb.NewDB()
		return Stores{
			Tx:           db,
			Orgs:         inmemdb.NewOrganizationRepository(db),
			Users:        inmemdb.NewUserRepository(db),
			Fees:         inmemdb.NewFeeRepository(db),
			Payments:     inmemdb.NewPaymentRepository(db),
			Transactions: inmemdb.NewGatewayRepository(db),
			Reports:      inmemdb.NewReportRepository(db),
		}, nil

	case core.StoragePostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return Stores{}, err
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return Stores{}, err
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return Stores{}, err
		}
		return Stores{
			DB:           db,
			Tx:           postgres.NewTxRunner(db),
			Orgs:         postgres.NewOrganizationRepository(db),
			Users:        postgres.NewUserRepository(db),
			Fees:         postgres.NewFeeRepository(db),
			Payments:     postgres.NewPaymentRepository(db),
			Transactions: postgres.NewGatewayRepository(db),
			Reports:      postgres.NewReportRepository(db),
		}, nil
	}
	return Stores{}, fmt.Errorf("unknown storage engine %q", conf.Database.Storage)
}

// NewApp wires every service. Optional infrastructure (redis, kafka) that cannot be reached
// is replaced by its in-process counterpart and logged.
func NewApp(ctx context.Context, conf *core.Config, logger core.Logger) (*App, error) {
	stores, err := OpenStores(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening stores")
	}
	app := &App{
		Conf:   conf,
		Logger: logger,
		Stores: stores,
	}
	if stores.DB != nil {
		app.closers = append(app.closers, stores.DB.Close)
	}

	app.Validate = validator.New()
	app.Translator = NewTranslator()
	core.InitValidators(app.Validate, app.Translator)
	user.RegisterValidators(app.Validate, app.Translator)
	core.ParseEmailTemplates(conf, logger)

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cache := app.newCache(ctx)
	bus := eventsvc.NewBus(cachesvc.NewReportInvalidator(cache, logger))
	if conf.Kafka.Enabled {
		producer, err := eventsvc.NewKafkaProducer(ctx, conf.Kafka.Brokers, logger)
		if err != nil {
			logger.Error("kafka unavailable; ledger events stay in process", err)
		} else {
			app.closers = append(app.closers, producer.Close)
			bus.Subscribe(eventsvc.NewKafkaPublisher(producer, conf.Kafka.Topic, logger))
		}
	}

	app.UserSvc = user.NewService(stores.Users)
	app.Resolver = tenant.NewResolver(app.UserSvc)
	app.FeeSvc = fee.NewService(stores.Fees, bus, mailSvc, logger)
	app.Recorder = payment.NewRecorder(stores.Tx, stores.Payments, stores.Fees, stores.Users, bus, mailSvc, logger)
	app.Reconciler = gateway.NewReconciler(
		gateway.Options{AppURL: conf.Gateway.AppURL, PlatformFeeRate: conf.Gateway.PlatformFeeRate},
		stores.Transactions, stores.Fees, stores.Payments, app.Recorder, phonepe.NewClient(conf), logger,
	)
	app.ReportSvc = report.NewService(stores.Reports, cache, logger)
	return app, nil
}

func (app *App) newCache(ctx context.Context) core.Cache {
	if app.Conf.Redis.Addr == "" {
		return cachesvc.NewMemoryCache(app.Conf.Redis.TTL)
	}
	rdb, err := cachesvc.NewRedisClient(ctx, app.Conf)
	if err != nil {
		app.Logger.Warn("redis unavailable; caching reports in memory", err)
		return cachesvc.NewMemoryCache(app.Conf.Redis.TTL)
	}
	app.closers = append(app.closers, rdb.Close)
	return cachesvc.NewRedisCache(rdb, app.Conf.Redis.TTL)
}

// Close releases connections in reverse order of opening.
func (app *App) Close() error {
	var firstErr error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
