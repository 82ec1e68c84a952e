//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"RelayGuard/internal/biz"
	"RelayGuard/internal/conf"
	"RelayGuard/internal/data"
	"RelayGuard/internal/server"
	"RelayGuard/internal/service"
	"RelayGuard/pkg/authority"
	"RelayGuard/pkg/upstream"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *conf.Data, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		authority.NewClient,
		upstream.NewClient,
		wire.Bind(new(biz.TokenIssuer), new(*authority.Client)),
		newApp,
	))
}
