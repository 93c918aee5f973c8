package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/wolfeidau/wayfarer/internal/models"
	"github.com/wolfeidau/wayfarer/internal/tokenstore"
)

var errPasswordRequired = errors.New("password is required")

type LoginCmd struct {
	Email    string `help:"Account email" required:""`
	Password string `help:"Account password, prompted for when omitted" env:"WAYFARER_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := readPassword(l.Password)
	if err != nil {
		return err
	}

	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	user, err := c.Login(ctx, l.Email, password)
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(globals.stdout(), "Signed in as %s <%s>\n", user.Name, user.Email)
	return nil
}

type RegisterCmd struct {
	Name     string `help:"Display name" required:""`
	Email    string `help:"Account email" required:""`
	Phone    string `help:"Phone number"`
	Password string `help:"Account password, prompted for when omitted" env:"WAYFARER_PASSWORD"`
}

func (r *RegisterCmd) Run(ctx context.Context, globals *Globals) error {
	password, err := readPassword(r.Password)
	if err != nil {
		return err
	}

	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	user, err := c.Register(ctx, models.RegisterInput{
		Name:     r.Name,
		Email:    r.Email,
		Password: password,
		Phone:    r.Phone,
	})
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(globals.stdout(), "Registered and signed in as %s <%s>\n", user.Name, user.Email)
	return nil
}

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	if !c.Current().IsAuthenticated() {
		fmt.Fprintln(globals.stdout(), "Not signed in.")
		return nil
	}

	c.Logout(ctx)

	fmt.Fprintln(globals.stdout(), "Signed out.")
	return nil
}

type StatusCmd struct{}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	c, err := globals.client()
	if err != nil {
		return err
	}
	defer c.Close()

	out := globals.stdout()
	session := c.Current()

	fmt.Fprintf(out, "Status:   %s\n", session.Status)
	if session.User == nil {
		return nil
	}

	fmt.Fprintf(out, "User:     %s <%s>\n", session.User.Name, session.User.Email)
	fmt.Fprintf(out, "Role:     %s\n", session.User.Role)
	fmt.Fprintf(out, "Verified: %v\n", session.User.Verified)

	if exp := tokenstore.ExpiresAt(c.Tokens.Get(tokenstore.Access)); !exp.IsZero() {
		fmt.Fprintf(out, "Expires:  %s (%s)\n", exp.Local().Format("2006-01-02 15:04:05"), expiresIn(exp))
	}

	return nil
}

func expiresIn(exp time.Time) string {
	d := time.Until(exp).Round(time.Second)
	if d <= 0 {
		return "expired, refreshed on next request"
	}
	return "in " + d.String()
}

func readPassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errPasswordRequired
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errPasswordRequired
	}
	return password, nil
}
