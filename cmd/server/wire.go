//go:build wireinject

package main

import (
	"github.com/google/wire"
	"menlo.ai/jan-feed-gateway/app/domain"
	"menlo.ai/jan-feed-gateway/app/infrastructure"
	"menlo.ai/jan-feed-gateway/app/interfaces/http"
	"menlo.ai/jan-feed-gateway/app/interfaces/http/routes"
)

func CreateApplication() (*Application, func(), error) {
	wire.Build(
		infrastructure.InfrastructureProvider,
		domain.ServiceProvider,
		routes.RouteProvider,
		http.NewHttpServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
