// Package admin implements the vaultadmin command line tool. It talks to the
// database directly through the service layer, so it works while the HTTP
// server is down.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

const usage = `usage: vaultadmin <command> [config flags]

commands:
  createuser   register a user, prompting for the password
`

// Registrar creates users; services.UserService satisfies it.
type Registrar interface {
	Register(ctx context.Context, in models.UserCreate) (*models.User, error)
}

type CLI struct {
	users Registrar
	in    *bufio.Reader
	out   io.Writer
}

func NewCLI(users Registrar, in io.Reader, out io.Writer) *CLI {
	return &CLI{users: users, in: bufio.NewReader(in), out: out}
}

// Usage writes the command summary to w.
func Usage(w io.Writer) {
	fmt.Fprint(w, usage)
}

// Dispatch runs the named command.
func (c *CLI) Dispatch(ctx context.Context, command string) error {
	switch command {
	case "createuser":
		return c.CreateUser(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
}

// CreateUser prompts for the user's fields and a password entered twice,
// then registers the user.
func (c *CLI) CreateUser(ctx context.Context) error {
	username, err := readLine(c.in, c.out, "Username")
	if err != nil {
		return err
	}
	email, err := readLine(c.in, c.out, "Email")
	if err != nil {
		return err
	}
	first, err := readLine(c.in, c.out, "First name (optional)")
	if err != nil {
		return err
	}
	last, err := readLine(c.in, c.out, "Last name (optional)")
	if err != nil {
		return err
	}

	password, err := readSecret(c.out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := readSecret(c.out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(password, confirm) {
		return ErrPasswordMismatch
	}

	user, err := c.users.Register(ctx, models.UserCreate{
		UserName:  username,
		Email:     email,
		FirstName: optional(first),
		LastName:  optional(last),
		Password:  string(password),
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return fmt.Errorf("user %q already exists", username)
		}
		return err
	}

	fmt.Fprintf(c.out, "User %s created with id %d\n", user.UserName, user.ID)
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
