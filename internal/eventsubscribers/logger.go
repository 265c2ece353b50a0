package eventsubscribers

import (
	"log/slog"
	"net"
	"net/url"

	"ely.by/multilogin/internal/dispatcher"
	"ely.by/multilogin/internal/mineskin"
)

type Logger struct {
	Logger *slog.Logger
}

func (l *Logger) ConfigureWithDispatcher(d dispatcher.Subscriber) {
	d.Subscribe("identity:created", l.handleIdentityCreated)
	d.Subscribe("identity:merged", l.handleIdentitiesMerged)
	d.Subscribe("identity:username_erased", l.handleUsernameErased)
	d.Subscribe("restorer:restored", l.handleSkinRestored)
	d.Subscribe("restorer:failed", l.handleRestorationError)
}

func (l *Logger) handleIdentityCreated(localUuid string, username string) {
	l.Logger.Info("Created a new identity",
		slog.String("localUuid", localUuid),
		slog.String("username", username),
	)
}

func (l *Logger) handleIdentitiesMerged(sourceLocalUuid string, targetLocalUuid string) {
	l.Logger.Info("Merged identities",
		slog.String("sourceLocalUuid", sourceLocalUuid),
		slog.String("targetLocalUuid", targetLocalUuid),
	)
}

func (l *Logger) handleUsernameErased(username string) {
	l.Logger.Info("Erased username occupancy", slog.String("username", username))
}

func (l *Logger) handleSkinRestored(onlineUuid string, username string) {
	l.Logger.Info("Restored a skin",
		slog.String("onlineUuid", onlineUuid),
		slog.String("username", username),
	)
}

// Restoration failures never affect logins, so transient upstream
// conditions stay at the warning level and only genuinely unexpected
// errors are escalated
func (l *Logger) handleRestorationError(onlineUuid string, err error) {
	errAttr := slog.Any("error", err)
	uuidAttr := slog.String("onlineUuid", onlineUuid)

	switch e := err.(type) {
	case *mineskin.BadRequestError, *mineskin.TooManyRequestsError, *mineskin.ServerError, *mineskin.InvalidGenerateResultError:
		l.Logger.Warn("Skin generator rejected the request", uuidAttr, errAttr)
		return
	case net.Error:
		if e.Timeout() {
			return
		}

		if _, ok := err.(*url.Error); ok {
			return
		}

		if opErr, ok := err.(*net.OpError); ok && (opErr.Op == "dial" || opErr.Op == "read") {
			return
		}
	}

	l.Logger.Error("Unexpected skin restoration error", uuidAttr, errAttr)
}
