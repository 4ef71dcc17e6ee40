package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/feeledger/apps/shared"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	app *shared.App
	db  *sql.DB   // nil on the memory engine
	out io.Writer // os.Stdout when nil
}

func (cli *commandLine) stdout() io.Writer {
	if cli.out == nil {
		return os.Stdout
	}
	return cli.out
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status...)")
	fmt.Println("  addorg -name NAME - create an organization")
	fmt.Println("  adduser -org ID -email EMAIL -name NAME -role ROLE [-role-id ID] [-students ID,ID] - create a user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  remind -org ID -year ID - email fee reminders for an academic year")
}

func (cli *commandLine) readPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addOrgCmd := flag.NewFlagSet("addorg", flag.ExitOnError)
	addOrgName := addOrgCmd.String("name", "", "The organization's name.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserOrg := addUserCmd.String("org", "", "The organization id.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserRole := addUserCmd.String("role", "", "ADMIN, TEACHER, STUDENT or PARENT.")
	addUserRoleID := addUserCmd.String("role-id", "", "The student, teacher or parent record id (all roles but ADMIN).")
	addUserStudents := addUserCmd.String("students", "", "Comma separated ids of a parent's students.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	remindCmd := flag.NewFlagSet("remind", flag.ExitOnError)
	remindOrg := remindCmd.String("org", "", "The organization id.")
	remindYear := remindCmd.String("year", "", "The academic year id.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addorg":
		if err := addOrgCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addOrgName == "" {
			addOrgCmd.Usage()
			return errHelp
		}
		return cli.addOrganization(*addOrgName)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserOrg == "" || *addUserEmail == "" || *addUserRole == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		var students []string
		if *addUserStudents != "" {
			students = strings.Split(*addUserStudents, ",")
		}
		return cli.addUser(newUserArgs{
			organizationID: *addUserOrg,
			email:          *addUserEmail,
			name:           *addUserName,
			role:           *addUserRole,
			roleSpecificID: *addUserRoleID,
			studentIDs:     students,
			password:       pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "remind":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *remindOrg == "" || *remindYear == "" {
			remindCmd.Usage()
			return errHelp
		}
		return cli.remind(*remindOrg, *remindYear)

	default:
		cli.printUsage()
		return errHelp
	}
}
