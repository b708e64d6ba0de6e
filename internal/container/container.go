package container

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	database "github.com/weijianlim/go-mes-dashboard/app/db"
	"github.com/weijianlim/go-mes-dashboard/config"
	"github.com/weijianlim/go-mes-dashboard/internal/api"
	"github.com/weijianlim/go-mes-dashboard/internal/api/auth"
	"github.com/weijianlim/go-mes-dashboard/internal/api/production"
	"github.com/weijianlim/go-mes-dashboard/internal/api/qualitycontrol"
)

// Container holds all application dependencies.
type Container struct {
	Config                *config.Config
	Logger                *slog.Logger
	Pool                  *pgxpool.Pool
	TokenService          auth.TokenService
	AuthHandler           *auth.HandlerImpl
	ProductionHandler     *production.HandlerImpl
	QualityControlHandler *qualitycontrol.HandlerImpl
}

// NewContainer initializes the database pool and wires repositories, services
// and handlers.
func NewContainer(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	validate := api.NewValidator()
	dev := cfg.IsDevelopment()

	tokenService := auth.NewJWTTokenService(cfg.JWT)

	authRepo := auth.NewPostgresAuthRepo(pool, logger)
	authService := auth.NewAuthService(authRepo, tokenService, logger)
	authHandler := auth.NewAuthHandlerImpl(authService, cfg.Cookie, validate, logger)

	productionRepo := production.NewPostgresProductionRepo(pool, logger)
	productionService := production.NewProductionService(productionRepo, logger)
	productionHandler := production.NewProductionHandlerImpl(productionService, validate, logger, dev)

	qcRepo := qualitycontrol.NewPostgresQualityControlRepo(pool, logger)
	qcService := qualitycontrol.NewQualityControlService(qcRepo, logger)
	qcHandler := qualitycontrol.NewQualityControlHandlerImpl(qcService, validate, logger, dev)

	return &Container{
		Config:                cfg,
		Logger:                logger,
		Pool:                  pool,
		TokenService:          tokenService,
		AuthHandler:           authHandler,
		ProductionHandler:     productionHandler,
		QualityControlHandler: qcHandler,
	}, nil
}

// Close releases the container's long-lived resources.
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
