package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/dukerupert/closeshop/internal/client/cart"
	"github.com/dukerupert/closeshop/internal/client/guard"
	"github.com/dukerupert/closeshop/internal/client/httpapi"
	"github.com/dukerupert/closeshop/internal/client/notify"
	"github.com/dukerupert/closeshop/internal/client/session"
	"github.com/dukerupert/closeshop/internal/model"
)

// Test seams for terminal access.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

type app struct {
	api      *httpapi.Client
	sessions *session.Store
	guard    *guard.Guard
	notes    *notify.Channel
	cart     *cart.Cart
	products map[int64]model.Product

	in     *bufio.Reader
	out    io.Writer
	logger *slog.Logger
	route  string
}

func newApp(api *httpapi.Client, in *bufio.Reader, out io.Writer, logger *slog.Logger) *app {
	sessions := session.New(api, api, logger.With("component", "session"))
	sessions.Init()
	return &app{
		api:      api,
		sessions: sessions,
		guard:    guard.New(sessions, guard.DefaultRoutes(), logger.With("component", "guard")),
		notes:    notify.New(api, logger.With("component", "notify")),
		cart:     cart.New(),
		products: make(map[int64]model.Product),
		in:       in,
		out:      out,
		logger:   logger,
		route:    guard.LoginPath,
	}
}

func (a *app) close() {
	a.notes.Reset()
	a.sessions.Close()
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) run(ctx context.Context) {
	a.navigate(ctx, guard.HomePath)
	a.printf("type 'help' for commands\n")

	for ctx.Err() == nil {
		a.printf("closeshop %s> ", a.route)
		line, err := a.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if quit := a.exec(ctx, line); quit {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// exec runs one command line and reports whether the loop should stop.
func (a *app) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help":
		a.help()
	case "exit", "quit":
		return true
	case "signup":
		err = a.signUp(ctx, args)
	case "login":
		err = a.signIn(ctx, args)
	case "logout":
		err = a.signOut(ctx)
	case "whoami":
		a.whoami()
	case "go":
		if len(args) != 1 {
			err = errors.New("usage: go <path>")
			break
		}
		a.navigate(ctx, args[0])
	case "notifications":
		a.listNotifications()
	case "send":
		err = a.send(ctx, args)
	case "products":
		err = a.listProducts(ctx, args)
	case "add":
		err = a.addToCart(args)
	case "remove":
		err = a.removeFromCart(args)
	case "cart":
		a.showCart()
	case "forgot":
		err = a.resetPassword(ctx, args)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		a.printf("error: %v\n", err)
	}
	return false
}

func (a *app) help() {
	a.printf(`commands:
  signup <email>        create an account
  login <email>         sign in
  logout                sign out
  whoami                show the signed-in user
  go <path>             navigate, e.g. go /admin-dashboard
  notifications         list notifications
  send <user-id> <text> message another user
  products [shop-id]    list products
  add <product-id> [n]  add a listed product to the cart
  remove <product-id>   remove a cart line
  cart                  show the cart
  forgot <email>        reset a forgotten password
  exit                  quit
`)
}

func (a *app) navigate(ctx context.Context, path string) {
	res := a.guard.Evaluate(ctx, path)
	switch res.Outcome {
	case guard.Allow:
		a.route = path
	default:
		a.printf("%s: %s, redirecting to %s\n", path, res.Outcome, res.Redirect)
		a.route = res.Redirect
	}
}

func (a *app) readSecret(prompt string) (string, error) {
	a.printf("%s: ", prompt)
	fd := int(os.Stdin.Fd())
	if isTerminal(fd) {
		pw, err := readPassword(fd)
		a.printf("\n")
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) signUp(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: signup <email>")
	}
	pw, err := a.readSecret("password")
	if err != nil {
		return err
	}
	if err := a.sessions.SignUp(ctx, args[0], pw); err != nil {
		return err
	}
	a.afterSignIn(ctx)
	return nil
}

func (a *app) signIn(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: login <email>")
	}
	pw, err := a.readSecret("password")
	if err != nil {
		return err
	}
	if err := a.sessions.SignIn(ctx, args[0], pw); err != nil {
		return err
	}
	a.afterSignIn(ctx)
	return nil
}

func (a *app) afterSignIn(ctx context.Context) {
	cur, _ := a.sessions.Current()
	a.printf("signed in as %s (%s)\n", cur.Email, roleOf(cur))

	if err := a.notes.Fetch(ctx, cur.UserID); err == nil {
		a.printf("%d notification(s)\n", len(a.notes.Notifications()))
	}
	if err := a.notes.Listen(context.WithoutCancel(ctx), cur.UserID); err != nil {
		a.printf("live notifications unavailable\n")
	}
	a.navigate(ctx, guard.HomePath)
}

func (a *app) signOut(ctx context.Context) error {
	a.notes.Reset()
	a.cart.Reset()
	err := a.sessions.SignOut(ctx)
	a.route = guard.LoginPath
	return err
}

func (a *app) whoami() {
	cur, ok := a.sessions.Current()
	if !ok {
		a.printf("not signed in\n")
		return
	}
	a.printf("%s %s (%s)\n", cur.UserID, cur.Email, roleOf(cur))
}

func roleOf(s session.Session) string {
	if !s.Loaded {
		return "role unknown"
	}
	return s.Role
}

func (a *app) listNotifications() {
	notes := a.notes.Notifications()
	if len(notes) == 0 {
		a.printf("no notifications\n")
		return
	}
	for _, n := range notes {
		read := " "
		if n.ReadAt == nil {
			read = "*"
		}
		a.printf("%s %d %s %s %s\n", read, n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Type, string(n.Payload))
	}
}

func (a *app) send(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: send <user-id> <text>")
	}
	msg, err := a.api.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	a.printf("sent message %d\n", msg.ID)
	return nil
}

func (a *app) listProducts(ctx context.Context, args []string) error {
	var shopID int64
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid shop id %q", args[0])
		}
		shopID = id
	}
	products, err := a.api.ListProducts(ctx, shopID)
	if err != nil {
		return err
	}
	for _, p := range products {
		a.products[p.ID] = p
		a.printf("%d %s %s\n", p.ID, p.Title, formatCents(p.PriceCents))
	}
	return nil
}

func (a *app) addToCart(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: add <product-id> [qty]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product id %q", args[0])
	}
	p, ok := a.products[id]
	if !ok {
		return fmt.Errorf("product %d not listed, run 'products' first", id)
	}
	qty := 1
	if len(args) > 1 {
		if qty, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
	}
	a.cart.Add(p, qty)
	a.printf("cart: %d item(s), %s\n", a.cart.Count(), formatCents(a.cart.Total()))
	return nil
}

func (a *app) removeFromCart(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <product-id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product id %q", args[0])
	}
	a.cart.Remove(id)
	return nil
}

func (a *app) showCart() {
	for _, it := range a.cart.Items() {
		a.printf("%d x %s @ %s\n", it.Qty, it.Title, formatCents(it.PriceCents))
	}
	a.printf("total: %d item(s), %s\n", a.cart.Count(), formatCents(a.cart.Total()))
}

func (a *app) resetPassword(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: forgot <email>")
	}
	email := args[0]
	if err := a.sessions.SendPasswordReset(ctx, email); err != nil {
		return err
	}
	a.printf("a reset code was sent to %s\ncode: ", email)
	code, err := a.in.ReadString('\n')
	if err != nil && code == "" {
		return err
	}
	pw, err := a.readSecret("new password")
	if err != nil {
		return err
	}
	if err := a.sessions.UpdatePassword(ctx, email, strings.TrimSpace(code), pw); err != nil {
		return err
	}
	a.printf("password updated, please log in\n")
	return nil
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}
