package logsvc

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/rs/zerolog"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
)

// RollbarLogger reports to Rollbar and writes structured lines to w.
type RollbarLogger struct {
	zl zerolog.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(w io.Writer, component string, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	if conf.Debug && w == os.Stdout {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	if conf.Debug {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
	return &RollbarLogger{zl: zl}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected fmt: msg | error, map[string]interface{}, user.User
// The logged in User travels in a per-call context; the shared client is never mutated.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	newArgs := make([]interface{}, 0, len(args)+1)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			if !usrSet { // only set one User
				person := &rollbar.Person{Id: usr.ID, Username: usr.Name, Email: usr.Email}
				newArgs = append(newArgs, rollbar.NewPersonContext(context.Background(), person))
				usrSet = true
			}
		} else {
			newArgs = append(newArgs, arg)
		}
	}
	return newArgs
}

func (l RollbarLogger) print(ev *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			ev = ev.Err(a)
		case map[string]interface{}:
			ev = ev.Fields(a)
		case user.User:
			ev = ev.Str("user_id", a.ID)
		default:
			ev = ev.Interface("extra", a)
		}
	}
	ev.Msg(msg)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(l.zl.Debug(), msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(l.zl.Info(), msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(l.zl.Warn(), msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(l.zl.Error(), msg, args)
}

// Fatal flushes Rollbar and exits the process.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	rollbar.Wait()
	l.print(l.zl.Fatal(), msg, args)
}
