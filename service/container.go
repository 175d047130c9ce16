package service

import (
	"sync/atomic"

	"github.com/eldopolis/portal-core/client"
	"github.com/eldopolis/portal-core/content"
	"github.com/eldopolis/portal-core/currency"
	"github.com/eldopolis/portal-core/events"
	"github.com/eldopolis/portal-core/prefetch"
	"github.com/eldopolis/portal-core/server"
	"github.com/eldopolis/portal-core/types"
)

// Container holds the wired components. Optional components keep a nil
// pointer when their config section disables them.
type Container struct {
	Config     atomic.Pointer[types.ConfigManager]
	Logger     atomic.Pointer[types.LoggerManager]
	Metrics    atomic.Pointer[types.MetricsManager]
	Health     atomic.Pointer[types.HealthManager]
	Store      atomic.Pointer[types.DocumentStore]
	Cache      atomic.Pointer[types.CacheStore]
	Content    atomic.Pointer[content.Service]
	Prefetch   atomic.Pointer[prefetch.Engine]
	Upstream   atomic.Pointer[client.HTTPClient]
	Currency   atomic.Pointer[currency.Service]
	HTTPServer atomic.Pointer[server.FastHTTPServer]
	Events     atomic.Pointer[events.Listener]
	Cron       atomic.Pointer[types.CronManager]
}

func NewContainer() *Container {
	return &Container{}
}

func (c *Container) SetConfig(manager types.ConfigManager) {
	c.Config.Store(&manager)
}

func (c *Container) SetLogger(manager types.LoggerManager) {
	c.Logger.Store(&manager)
}

func (c *Container) SetMetrics(manager types.MetricsManager) {
	c.Metrics.Store(&manager)
}

func (c *Container) SetHealth(manager types.HealthManager) {
	c.Health.Store(&manager)
}

func (c *Container) SetStore(store types.DocumentStore) {
	c.Store.Store(&store)
}

func (c *Container) SetCache(store types.CacheStore) {
	c.Cache.Store(&store)
}

func (c *Container) SetContent(service *content.Service) {
	c.Content.Store(service)
}

func (c *Container) SetPrefetch(engine *prefetch.Engine) {
	c.Prefetch.Store(engine)
}

func (c *Container) SetUpstream(httpClient *client.HTTPClient) {
	c.Upstream.Store(httpClient)
}

func (c *Container) SetCurrency(service *currency.Service) {
	c.Currency.Store(service)
}

func (c *Container) SetHTTPServer(httpServer *server.FastHTTPServer) {
	c.HTTPServer.Store(httpServer)
}

func (c *Container) SetEvents(listener *events.Listener) {
	c.Events.Store(listener)
}

func (c *Container) SetCron(manager types.CronManager) {
	c.Cron.Store(&manager)
}
