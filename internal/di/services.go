package di

import (
	"context"
	"fmt"

	"github.com/defval/di"
	"github.com/spf13/viper"

	"ely.by/multilogin/internal/http"
	"ely.by/multilogin/internal/services"
	"ely.by/multilogin/internal/whitelist"
)

var servicesDiOptions = di.Options(
	di.Provide(newServicesRegistry),
	di.Provide(newWhitelist),
	di.Provide(newReloader, di.As(new(http.Reloader))),
)

type serviceConfig struct {
	Id         int    `mapstructure:"id"`
	Name       string `mapstructure:"name"`
	SessionUrl string `mapstructure:"session_url"`
}

// Service ids default to the position in the configuration, so reordering
// the list without explicit ids remaps already persisted users. Explicit
// ids are the way to rename or reorder safely
func parseServices(config *viper.Viper) ([]*services.Service, error) {
	var configured []serviceConfig
	err := config.UnmarshalKey("services.list", &configured)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the services list: %w", err)
	}

	result := make([]*services.Service, len(configured))
	for i, service := range configured {
		if service.Name == "" || service.SessionUrl == "" {
			return nil, fmt.Errorf("service #%d must have both name and session_url", i+1)
		}

		id := service.Id
		if id == 0 {
			id = i + 1
		}

		result[i] = &services.Service{
			Id:         id,
			Name:       service.Name,
			SessionUrl: service.SessionUrl,
		}
	}

	return result, nil
}

func newServicesRegistry(config *viper.Viper) (*services.Registry, error) {
	parsed, err := parseServices(config)
	if err != nil {
		return nil, err
	}

	return services.NewRegistry(parsed), nil
}

type viperWhitelistPersister struct {
	config *viper.Viper
}

func (p *viperWhitelistPersister) PersistWhitelist(enabled bool, names []string) error {
	p.config.Set("whitelist.enabled", enabled)
	p.config.Set("whitelist.names", names)
	if p.config.ConfigFileUsed() == "" {
		// Nothing to write back to, the state stays process-scoped
		return nil
	}

	return p.config.WriteConfig()
}

func newWhitelist(config *viper.Viper) *whitelist.Whitelist {
	w := whitelist.New(&viperWhitelistPersister{config: config})
	w.Load(config.GetBool("whitelist.enabled"), config.GetStringSlice("whitelist.names"))

	return w
}

func newReloader(config *viper.Viper, registry *services.Registry, w *whitelist.Whitelist) *configReloader {
	return &configReloader{
		config:    config,
		registry:  registry,
		whitelist: w,
	}
}

// configReloader re-reads the configuration file and swaps the services
// table and the whitelist wholesale
type configReloader struct {
	config    *viper.Viper
	registry  *services.Registry
	whitelist *whitelist.Whitelist
}

func (r *configReloader) Reload(ctx context.Context) error {
	if r.config.ConfigFileUsed() != "" {
		err := r.config.ReadInConfig()
		if err != nil {
			return err
		}
	}

	parsed, err := parseServices(r.config)
	if err != nil {
		return err
	}

	r.registry.Reload(parsed)
	r.whitelist.Load(r.config.GetBool("whitelist.enabled"), r.config.GetStringSlice("whitelist.names"))

	return nil
}
