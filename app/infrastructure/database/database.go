package database

import (
	"context"
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
	"menlo.ai/jan-feed-gateway/app/utils/logger"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

var ErrNotConfigured = errors.New("database: DB_POSTGRESQL_WRITE_DSN is not set")

var SchemaRegistry []interface{}

func RegisterSchemaForAutoMigrate(models ...interface{}) {
	SchemaRegistry = append(SchemaRegistry, models...)
}

var DB *gorm.DB

func NewDB() (*gorm.DB, error) {
	env := environment_variables.EnvironmentVariables
	if env.DB_POSTGRESQL_WRITE_DSN == "" {
		return nil, ErrNotConfigured
	}
	db, err := gorm.Open(postgres.Open(env.DB_POSTGRESQL_WRITE_DSN), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		logger.GetLogger().
			WithField("error_code", "5c16fb53-d98c-4fc6-8bb4-9abd3c0b9e88").
			Errorf("unable to connect to database: %v", err)
		return nil, err
	}
	if env.DB_POSTGRESQL_READ1_DSN != "" {
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: []gorm.Dialector{postgres.Open(
				env.DB_POSTGRESQL_READ1_DSN,
			)},
			Policy: dbresolver.RandomPolicy{},
		}))
		if err != nil {
			logger.GetLogger().
				WithField("error_code", "9fab4b2e-1d70-4a4e-928a-5e81c7ee06de").
				Errorf("unable to connect to setup replica: %v", err)
			return nil, err
		}
	}

	for _, model := range SchemaRegistry {
		err = db.AutoMigrate(model)
		if err != nil {
			logger.GetLogger().
				WithField("error_code", "75333e43-8157-4f0a-8e34-aa34e6e7c285").
				Errorf("failed to auto migrate schema: %T, error: %v", model, err)
			return nil, err
		}
	}
	if err = NewDBMigrator(db).Migrate(context.Background()); err != nil {
		logger.GetLogger().
			WithField("error_code", "07217a04-80f1-466f-8d2c-cdd162dd9ccb").
			Errorf("failed to apply migrations: %v", err)
		return nil, err
	}

	DB = db
	return DB, nil
}
