package main

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/domain/booking"
	"github.com/labflow/labflow/internal/domain/labanalytics"
	"github.com/labflow/labflow/internal/domain/labqueue"
	"github.com/labflow/labflow/internal/domain/labregistry"
	"github.com/labflow/labflow/internal/domain/labresult"
	"github.com/labflow/labflow/internal/domain/labsample"
	"github.com/labflow/labflow/internal/platform/cache"
	"github.com/labflow/labflow/internal/platform/db"
	"github.com/labflow/labflow/internal/platform/telemetry"
)

type domainDeps struct {
	Pool         db.Querier
	Tx           db.UnitOfWork
	Cache        *cache.Cache
	QueueInitial string
	Metrics      *telemetry.Metrics
	Logger       zerolog.Logger
}

// registerDomains builds every lab service over d.Pool and mounts its
// routes on api. Services are built in dependency order: the queue feeds
// samples, and both feed results.
func registerDomains(api *echo.Group, d domainDeps) {
	ledger := booking.NewLedgerPG(d.Pool)
	actors := booking.NewActorDirectoryPG(d.Pool)

	initial, err := labqueue.ParseStatus(d.QueueInitial)
	if err != nil {
		initial = labqueue.StatusProcessing
	}

	registrySvc := labregistry.NewService(labregistry.NewRepoPG(d.Pool), d.Tx, d.Logger)
	queueSvc := labqueue.NewService(labqueue.NewRepoPG(d.Pool), ledger, d.Tx, initial, d.Metrics, d.Logger)
	sampleSvc := labsample.NewService(labsample.NewRepoPG(d.Pool), queueSvc, actors, d.Cache, d.Tx, d.Metrics, d.Logger)
	analyticsSvc := labanalytics.NewService(labanalytics.NewRepoPG(d.Pool), d.Metrics, d.Logger)
	resultSvc := labresult.NewService(labresult.NewRepoPG(d.Pool), labresult.Deps{
		Samples:    sampleSvc,
		Queue:      queueSvc,
		Params:     registrySvc,
		Completion: analyticsSvc,
		Ledger:     ledger,
		Actors:     actors,
	}, d.Tx, d.Metrics, d.Logger)

	labregistry.NewHandler(registrySvc).RegisterRoutes(api)
	labqueue.NewHandler(queueSvc).RegisterRoutes(api)
	labsample.NewHandler(sampleSvc).RegisterRoutes(api)
	labresult.NewHandler(resultSvc).RegisterRoutes(api)
	labanalytics.NewHandler(analyticsSvc).RegisterRoutes(api)
}
