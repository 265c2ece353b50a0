package di

import (
	"net/http"

	"github.com/defval/di"
	"github.com/spf13/viper"
)

var httpClientDiOptions = di.Options(
	di.Provide(newHttpClient),
)

func newHttpClient(config *viper.Viper) *http.Client {
	config.SetDefault("services.timeout", "10s")

	return &http.Client{
		Timeout: config.GetDuration("services.timeout"),
	}
}
