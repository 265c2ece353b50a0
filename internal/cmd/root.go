package cmd

import (
	"context"
	"log"
	"strings"

	. "github.com/defval/di"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ely.by/multilogin/internal/di"
	"ely.by/multilogin/internal/http"
	"ely.by/multilogin/internal/otel"
	"ely.by/multilogin/internal/skinrestorer"
	"ely.by/multilogin/internal/version"
)

var RootCmd = &cobra.Command{
	Use:     "multilogin",
	Short:   "Multi-service Minecraft identity resolution and persistence engine",
	Version: version.Version(),
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func shouldGetContainer() *Container {
	container, err := di.New()
	if err != nil {
		panic(err)
	}

	return container
}

func startServer(modules []string) {
	container := shouldGetContainer()

	var config *viper.Viper
	err := container.Resolve(&config)
	if err != nil {
		log.Fatal(err)
	}

	config.Set("modules", modules)

	var ctx context.Context
	err = container.Resolve(&ctx)
	if err != nil {
		log.Fatal(err)
	}

	otelShutdown, err := otel.SetupOTelSDK(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = otelShutdown(context.Background())
	}()

	err = container.Invoke(http.StartServer)
	if err != nil {
		log.Fatal(err)
	}

	// Let the scheduled restoration jobs finish before the process exits
	var restorer *skinrestorer.Restorer
	if err := container.Resolve(&restorer); err == nil {
		restorer.Stop()
	}
}

var cfgFile string

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal(err)
		}
	}

	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
}
