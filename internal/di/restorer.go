package di

import (
	"net/http"

	"github.com/defval/di"
	"github.com/spf13/viper"

	"ely.by/multilogin/internal/mineskin"
	"ely.by/multilogin/internal/session"
	"ely.by/multilogin/internal/skinrestorer"
)

var restorerDiOptions = di.Options(
	di.Provide(newMineskinClient, di.As(new(skinrestorer.SkinGenerator))),
	di.Provide(newRestorer, di.As(new(session.SkinRestorer))),
)

func newMineskinClient(config *viper.Viper, httpClient *http.Client) *mineskin.Client {
	return mineskin.NewClient(httpClient, config.GetString("mineskin.base_url"))
}

func newRestorer(
	store skinrestorer.RestorerStore,
	generator skinrestorer.SkinGenerator,
	emitter skinrestorer.Emitter,
	config *viper.Viper,
) (*skinrestorer.Restorer, error) {
	return skinrestorer.New(store, generator, emitter, skinrestorer.Params{
		TrustedSkinHostSuffix: config.GetString("restorer.trusted_skin_host_suffix"),
		PoolSize:              config.GetInt("restorer.pool_size"),
		Timeout:               config.GetDuration("restorer.timeout"),
	})
}
