package handler

import (
	"context"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/push"
	"pingup/internal/app/storage"
	"pingup/internal/app/user"
	"pingup/internal/configs"
)

// Pinger reports whether the store backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps bundles everything the handlers need. StorageService is nil when media is disabled.
type AppDeps struct {
	Config         *configs.AppConfig
	Registry       *push.Registry
	Users          *user.Service
	Chat           *chat.Service
	Graph          *graph.Engine
	StorageService storage.StorageService
	Store          Pinger
}
