package logsvc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rollbar/rollbar-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(&buf, "TEST", &core.Config{Env: "TEST"})
	logger.Enable(false)

	usr := user.User{ID: "u-1", Name: "Bu Sari", Roles: []string{user.RoleTeacher}}
	tests := []struct {
		name string
		log  func()
		want []string
	}{
		{
			name: "info with extras & user",
			log: func() {
				logger.Info("report cards generated", map[string]interface{}{"generated": 3}, usr)
			},
			want: []string{`"level":"info"`, `"component":"TEST"`, `"generated":3`, `"user_id":"u-1"`, `"message":"report cards generated"`},
		},
		{
			name: "error",
			log:  func() { logger.Error("publishing report card", errors.New("boom")) },
			want: []string{`"level":"error"`, `"error":"boom"`},
		},
		{
			name: "debug is filtered out of non-debug loggers",
			log:  func() { logger.Debug("noise") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			out := buf.String()
			if len(tt.want) == 0 && out != "" {
				t.Errorf("unexpected output: %s", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output = %s; want it to contain %s", out, w)
				}
			}
		})
	}
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := NewRollbarLogger(io.Discard, "TEST", &core.Config{Env: "TEST"})
	logger.Enable(false)

	usr := user.User{ID: "u-1", Name: "Bu Sari", Email: "sari@school.test"}
	other := user.User{ID: "u-2", Name: "Pak Dodi"}
	extras := map[string]interface{}{"generated": 3}

	args := logger.prepare("report cards generated", []interface{}{extras, usr, other})
	require.Len(t, args, 3)
	assert.Equal(t, "report cards generated", args[0])
	assert.Equal(t, extras, args[1])

	ctx, ok := args[2].(context.Context)
	require.True(t, ok, "the user must be passed as a context")
	person, ok := rollbar.PersonFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, &rollbar.Person{Id: "u-1", Username: "Bu Sari", Email: "sari@school.test"}, person)

	args = logger.prepare("no user", []interface{}{extras})
	assert.Equal(t, []interface{}{"no user", extras}, args)
}

// run with -race: concurrent requests log with different users.
func TestRollbarLogger_concurrent(t *testing.T) {
	logger := NewRollbarLogger(io.Discard, "TEST", &core.Config{Env: "TEST"})
	logger.Enable(false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			usr := user.User{ID: string(rune('a' + i)), Name: "user"}
			for j := 0; j < 20; j++ {
				logger.Info("report card published", usr)
				logger.Error("publishing report card", errors.New("boom"), usr)
				logger.Warn("no user")
			}
		}(i)
	}
	wg.Wait()
}
