package eventsubscribers

import (
	"context"
	"errors"

	"github.com/etherlabsio/healthcheck/v2"
)

type Pingable interface {
	Ping(ctx context.Context) error
}

func DatabaseChecker(connection Pingable) healthcheck.CheckerFunc {
	return func(ctx context.Context) error {
		done := make(chan error)
		go func() {
			done <- connection.Ping(ctx)
		}()

		select {
		case <-ctx.Done():
			return errors.New("check timeout")
		case err := <-done:
			return err
		}
	}
}
