package main

import (
	"bufio"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/rapor/core"
	"github.com/trezcool/rapor/core/report"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp       = errors.New("help provided")
	errAborted    = errors.New("aborted")
	errNoDatabase = errors.New("migrations need the postgres engine")
)

type commandLine struct {
	conf      *core.Config
	db        *sql.DB // nil with the memory engine
	reportSvc *report.Service
	in        io.Reader
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, redo, ...)")
	fmt.Fprintln(cli.out, "  token -user ID -name NAME [-email EMAIL] -role ROLE[,ROLE] - issue an API token")
	fmt.Fprintln(cli.out, "  generate -class ID -semester ID -user ID - generate the report cards of a class")
	fmt.Fprintln(cli.out, "  publishall -class ID -semester ID -user ID [-yes] - publish the report cards of a class")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenUser := tokenCmd.String("user", "", "The user's ID.")
	tokenName := tokenCmd.String("name", "", "The user's name.")
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenRoles := tokenCmd.String("role", "", "Comma separated roles, e.g. admin:principal or teacher:")

	generateCmd := flag.NewFlagSet("generate", flag.ExitOnError)
	generateClass := generateCmd.String("class", "", "The class ID.")
	generateSemester := generateCmd.String("semester", "", "The semester ID.")
	generateUser := generateCmd.String("user", "", "ID of the admin running the command.")

	publishCmd := flag.NewFlagSet("publishall", flag.ExitOnError)
	publishClass := publishCmd.String("class", "", "The class ID.")
	publishSemester := publishCmd.String("semester", "", "The semester ID.")
	publishUser := publishCmd.String("user", "", "ID of the admin running the command.")
	publishYes := publishCmd.Bool("yes", false, "Do not ask for confirmation.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUser == "" || *tokenRoles == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.issueToken(*tokenUser, *tokenName, *tokenEmail, strings.Split(*tokenRoles, ","))

	case "generate":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateClass == "" || *generateSemester == "" || *generateUser == "" {
			generateCmd.Usage()
			return errHelp
		}
		return cli.generate(*generateClass, *generateSemester, *generateUser)

	case "publishall":
		if err := publishCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *publishClass == "" || *publishSemester == "" || *publishUser == "" {
			publishCmd.Usage()
			return errHelp
		}
		if !*publishYes {
			ok, err := cli.confirm(fmt.Sprintf("Publish every report card of class %s for semester %s?", *publishClass, *publishSemester))
			if err != nil {
				return err
			}
			if !ok {
				return errAborted
			}
		}
		return cli.publishAll(*publishClass, *publishSemester, *publishUser)

	default:
		cli.printUsage()
		return errHelp
	}
}

// confirm asks a yes/no question when stdin is a terminal. Scripts are never prompted.
func (cli *commandLine) confirm(question string) (bool, error) {
	if !isTerminalFunc(int(syscall.Stdin)) {
		return true, nil
	}
	fmt.Fprintf(cli.out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(cli.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
