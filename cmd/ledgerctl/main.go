package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/guarzo/ledgerapi/common"
	"github.com/guarzo/ledgerapi/common/model"
	"github.com/guarzo/ledgerapi/config"
	"github.com/guarzo/ledgerapi/modules/api"
	"github.com/guarzo/ledgerapi/modules/ledger"
)

const usage = `usage: ledgerctl [-config file] [-quiet] <command> [flags]

commands:
  login     -email -password
  register  -name -email -password
  me
  products  [-user id]
  balance   [-user id]
  create    -name -qty -price -date YYYY-MM-DD [-description] [-income]
  update    -id -name -qty -price -date YYYY-MM-DD [-description] [-income] [-image file]
  delete    -id
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		// the session-expired hook has already told the user where to log in
		if !errors.Is(err, common.ErrUnauthenticated) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	configFile := global.String("config", "", "path to a YAML config file")
	quiet := global.Bool("quiet", false, "skip the banner")
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		return err
	}
	logger := common.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hc := common.NewHttpClient(cfg.API.UserAgent, &http.Client{}, cfg.API.Timeout)
	defer hc.CloseIdleConnections()

	client := api.NewApiClient(api.Config{
		BaseURL:     cfg.API.BaseURL,
		RefreshPath: cfg.API.RefreshPath,
		TokenTTL:    cfg.Session.TokenTTL,
		OnSessionExpired: func() {
			fmt.Fprintf(stderr, "session expired, log in again: %s\n", cfg.API.LoginURL)
		},
		Logger: &logger,
	}, hc, store, nil)
	svc := ledger.NewLedgerService(client, cfg.Session.TokenTTL, logger)

	if !*quiet {
		displayAppname(stdout, "ledger")
	}
	return dispatch(ctx, svc, global.Arg(0), global.Args()[1:], stdout, stderr, logger)
}

func newStore(ctx context.Context, cfg *config.Config) (common.SessionStore, func(), error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return common.NewMemoryStore(cfg.Session.TokenKey), func() {}, nil
	case config.StoreFile:
		return common.NewFileStore(cfg.Session.File, cfg.Session.TokenKey), func() {}, nil
	}
	store, err := common.NewRedisStore(ctx, &redis.Options{
		Addr:     cfg.Session.Redis.Addr,
		Password: cfg.Session.Redis.Password,
		DB:       cfg.Session.Redis.DB,
	}, cfg.Session.TokenKey)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func dispatch(ctx context.Context, svc ledger.LedgerService, cmd string, args []string, stdout, stderr io.Writer, logger zerolog.Logger) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	switch cmd {
	case "login":
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := svc.Login(ctx, model.LoginRequest{Email: *email, Password: *password}); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "logged in")
		return nil

	case "register":
		name := fs.String("name", "", "display name")
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := svc.Register(ctx, model.RegisterRequest{Name: *name, Email: *email, Password: *password}); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "registered")
		return nil

	case "me":
		user, err := svc.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s <%s> (%s)\n", user.Name, user.Email, user.ID)
		return nil

	case "products", "balance":
		userID := fs.String("user", "", "user id (defaults to the logged-in user)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		products, err := listProducts(ctx, svc, *userID)
		if err != nil {
			return err
		}
		if cmd == "products" {
			printProducts(stdout, products)
			return nil
		}
		printBalance(stdout, ledger.Summarize(products))
		return nil

	case "create", "update":
		in, id, imagePath, err := parseProductFlags(fs, args, cmd == "update")
		if err != nil {
			return err
		}
		var p *model.Product
		if cmd == "create" {
			p, err = svc.CreateProduct(ctx, in)
		} else {
			p, err = updateProduct(ctx, svc, id, in, imagePath)
		}
		if err != nil {
			return err
		}
		logger.Debug().Str("id", p.ID).Msg("product saved")
		fmt.Fprintln(stdout, "saved")
		return nil

	case "delete":
		id := fs.String("id", "", "product id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return errors.New("delete: -id is required")
		}
		if err := svc.DeleteProduct(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "deleted")
		return nil
	}

	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func listProducts(ctx context.Context, svc ledger.LedgerService, userID string) ([]model.Product, error) {
	if userID == "" {
		id, err := svc.CurrentUserID(ctx)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	return svc.ListProducts(ctx, userID)
}

func parseProductFlags(fs *flag.FlagSet, args []string, update bool) (model.ProductInput, string, string, error) {
	id := fs.String("id", "", "product id")
	name := fs.String("name", "", "product name")
	description := fs.String("description", "", "optional description")
	qty := fs.Int("qty", 1, "quantity")
	price := fs.Float64("price", 0, "unit price")
	date := fs.String("date", "", "entry date, YYYY-MM-DD")
	income := fs.Bool("income", false, "book as income instead of expense")
	image := fs.String("image", "", "image file to attach (update only)")
	if err := fs.Parse(args); err != nil {
		return model.ProductInput{}, "", "", err
	}
	if update && *id == "" {
		return model.ProductInput{}, "", "", errors.New("update: -id is required")
	}

	apiDate, err := model.FormatAPIDate(*date)
	if err != nil {
		return model.ProductInput{}, "", "", err
	}
	return model.ProductInput{
		Name:        *name,
		Description: *description,
		Quantity:    *qty,
		Price:       *price,
		Date:        apiDate,
		Category:    *income,
	}, *id, *image, nil
}

func updateProduct(ctx context.Context, svc ledger.LedgerService, id string, in model.ProductInput, imagePath string) (*model.Product, error) {
	if imagePath == "" {
		return svc.UpdateProduct(ctx, id, in, nil)
	}
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return svc.UpdateProduct(ctx, id, in, &ledger.Image{
		Filename:    filepath.Base(imagePath),
		ContentType: mime.TypeByExtension(filepath.Ext(imagePath)),
		Content:     f,
	})
}

func printProducts(w io.Writer, products []model.Product) {
	for _, p := range products {
		fmt.Fprintf(w, "%-10s %-24s %4d  R$ %10.2f  %-10s %s\n",
			p.ID, p.Name, p.Quantity, p.Price, p.Date, model.CategoryLabel(p.Category))
	}
}

func printBalance(w io.Writer, b model.Balance) {
	fmt.Fprintf(w, "entries:  %d\n", b.Count)
	fmt.Fprintf(w, "income:   R$ %.2f\n", b.Income)
	fmt.Fprintf(w, "expense:  R$ %.2f\n", b.Expense)
	fmt.Fprintf(w, "total:    R$ %.2f\n", b.Total)
	if b.LastRecord != nil {
		fmt.Fprintf(w, "last:     %s (%s)\n", b.LastRecord.Name, b.LastRecord.Date)
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
