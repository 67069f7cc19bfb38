package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/user"
	"github.com/trezcool/rapor/services/email"
	"github.com/trezcool/rapor/tests"
)

func setup(t *testing.T, stdin string) (*commandLine, *testutil.Fixture, *bytes.Buffer) {
	t.Helper()

	fx := testutil.NewFixture(t)
	conf := testutil.Config()

	// never connected: migrations are mocked
	db, err := sql.Open(core.EnginePostgres, "postgres://rapor@localhost/rapor_test?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	emailsvc.ResetSentMessages()
	var out bytes.Buffer
	cli := &commandLine{
		conf:      conf,
		db:        db,
		reportSvc: fx.NewService(emailsvc.NewConsoleServiceMock(conf, testutil.Logger())),
		in:        strings.NewReader(stdin),
		out:       &out,
	}
	return cli, fx, &out
}

func mockTerminal(t *testing.T, isTerminal bool) {
	orig := isTerminalFunc
	isTerminalFunc = func(int) bool { return isTerminal }
	t.Cleanup(func() { isTerminalFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCliTests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if err != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, _, out := setup(t, "")

	runCliTests(t, cli, out, []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp, wantOut: "Usage:"},
	})
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, out := setup(t, "")

	orig := gooseRunFunc
	t.Cleanup(func() { gooseRunFunc = orig })
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCliTests(t, cli, out, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	})

	t.Run("memory engine", func(t *testing.T) {
		cli.db = nil
		assert.Equal(t, errNoDatabase, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_token(t *testing.T) {
	cli, _, out := setup(t, "")

	runCliTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"token"}, wantErr: errHelp},
		{name: "no role", args: []string{"token", "-user", "teacher-9"}, wantErr: errHelp},
		{name: "invalid role", args: []string{"token", "-user", "teacher-9", "-role", "janitor"}, wantErrStr: `invalid role "janitor"`},
	})

	t.Run("issued", func(t *testing.T) {
		out.Reset()
		err := cli.run([]string{"admin", "token", "-user", "teacher-9", "-name", "Bu Rina", "-role", "teacher:, admin:principal"})
		require.NoError(t, err)

		claims, err := user.ParseToken(strings.TrimSpace(out.String()), []byte(cli.conf.SecretKey))
		require.NoError(t, err)
		usr := claims.User()
		assert.Equal(t, "teacher-9", usr.ID)
		assert.Equal(t, "Bu Rina", usr.Name)
		assert.Equal(t, []string{user.RoleTeacher, user.RoleAdminPrincipal}, usr.Roles)
		assert.True(t, claims.IsAdmin)
		assert.True(t, claims.IsTeacher)
		assert.False(t, claims.IsStudent)
	})
}

func Test_commandLine_generate(t *testing.T) {
	cli, fx, out := setup(t, "")

	runCliTests(t, cli, out, []cliTest{
		{name: "no args", args: []string{"generate"}, wantErr: errHelp},
		{name: "no user", args: []string{"generate", "-class", fx.Class.ID, "-semester", fx.Semester.ID}, wantErr: errHelp},
		{
			name:    "generated",
			args:    []string{"generate", "-class", fx.Class.ID, "-semester", fx.Semester.ID, "-user", "ops-1"},
			wantOut: "generated: 3, skipped: 0, failed: 0",
		},
		{
			name:    "already generated",
			args:    []string{"generate", "-class", fx.Class.ID, "-semester", fx.Semester.ID, "-user", "ops-1"},
			wantOut: "generated: 0, skipped: 3, failed: 0",
		},
	})

	t.Run("unknown class", func(t *testing.T) {
		err := cli.run([]string{"admin", "generate", "-class", "class-x", "-semester", fx.Semester.ID, "-user", "ops-1"})
		assert.True(t, core.IsNotFound(err), err)
	})
}

func Test_commandLine_publishAll(t *testing.T) {
	args := func(fx *testutil.Fixture, extra ...string) []string {
		return append([]string{"admin", "publishall", "-class", fx.Class.ID, "-semester", fx.Semester.ID, "-user", "ops-1"}, extra...)
	}
	generated := func(t *testing.T, cli *commandLine, fx *testutil.Fixture) {
		require.NoError(t, cli.run([]string{"admin", "generate", "-class", fx.Class.ID, "-semester", fx.Semester.ID, "-user", "ops-1"}))
	}
	publishedCards := func(t *testing.T, fx *testutil.Fixture) int {
		cards, err := fx.Repo.ListCards(context.Background(), fx.Class.ID, fx.Semester.ID)
		require.NoError(t, err)
		var n int
		for _, c := range cards {
			if c.Published {
				n++
			}
		}
		return n
	}

	t.Run("no args", func(t *testing.T) {
		cli, _, _ := setup(t, "")
		assert.Equal(t, errHelp, cli.run([]string{"admin", "publishall"}))
	})

	t.Run("declined", func(t *testing.T) {
		mockTerminal(t, true)
		cli, fx, out := setup(t, "n\n")
		generated(t, cli, fx)

		assert.Equal(t, errAborted, cli.run(args(fx)))
		assert.Contains(t, out.String(), "[y/N]")
		assert.Equal(t, 0, publishedCards(t, fx))
	})

	t.Run("confirmed", func(t *testing.T) {
		mockTerminal(t, true)
		cli, fx, out := setup(t, "y\n")
		generated(t, cli, fx)

		require.NoError(t, cli.run(args(fx)))
		assert.Contains(t, out.String(), "published: 3, skipped: 0, failed: 0")
		assert.Equal(t, 3, publishedCards(t, fx))
		assert.Len(t, emailsvc.SentMessages(), 2)
	})

	t.Run("not a terminal", func(t *testing.T) {
		mockTerminal(t, false)
		cli, fx, out := setup(t, "")
		generated(t, cli, fx)

		require.NoError(t, cli.run(args(fx)))
		assert.NotContains(t, out.String(), "[y/N]")
		assert.Equal(t, 3, publishedCards(t, fx))
	})

	t.Run("yes flag", func(t *testing.T) {
		mockTerminal(t, true)
		cli, fx, out := setup(t, "")
		generated(t, cli, fx)

		require.NoError(t, cli.run(args(fx, "-yes")))
		assert.Equal(t, 3, publishedCards(t, fx))

		// a second run finds nothing left to publish
		out.Reset()
		require.NoError(t, cli.run(args(fx, "-yes")))
		assert.Contains(t, out.String(), "published: 0, skipped: 0, failed: 0")
	})
}
