package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/catalogfeed"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/identity"
	"github.com/xenking/storefront/internal/storage/postgres"
)

// seedUsers are created or refreshed on every run.
var seedUsers = []auth.User{
	{ID: "admin", Email: "admin@storefront.local", Name: "Store Admin", Roles: []auth.Role{auth.RoleAdmin, auth.RoleUser}},
	{ID: "shopper", Email: "shopper@storefront.local", Name: "Sample Shopper", Roles: []auth.Role{auth.RoleUser}},
}

func main() {
	var (
		databaseURL  string
		productsFile string
		jwtSecret    string
		jwtIssuer    string
		tokenTTL     time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HMAC secret for printed tokens (or SHOP_JWT_SECRET env)")
	flag.StringVar(&jwtIssuer, "jwt-issuer", "storefront", "issuer claim of printed tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("SHOP_JWT_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var issuer *identity.Issuer
	if jwtSecret != "" {
		issuer = identity.NewIssuer([]byte(jwtSecret), jwtIssuer)
	}

	if err := run(ctx, databaseURL, productsFile, issuer, tokenTTL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, issuer *identity.Issuer, tokenTTL time.Duration) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewImportStore(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedUsersAndTokens(ctx, postgres.NewUserRepository(pool), issuer, tokenTTL); err != nil {
		return errors.Wrap(err, "seed users")
	}

	return nil
}

func seedProducts(ctx context.Context, store catalogfeed.Store, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}
	records, err := catalogfeed.DecodeArray(data)
	if err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(records)))

	res, err := catalogfeed.NewImporter(store).Import(ctx, records)
	if err != nil {
		return err
	}

	slog.Info("products seeded",
		slog.Int("inserted", res.Copied),
		slog.Int("updated", res.Upserted),
		slog.Int("categories", res.Categories),
	)
	return nil
}

func seedUsersAndTokens(ctx context.Context, users auth.UserRepository, issuer *identity.Issuer, ttl time.Duration) error {
	for _, u := range seedUsers {
		if err := users.Upsert(ctx, &u); err != nil {
			return errors.Wrapf(err, "upsert user %s", u.ID)
		}
		slog.Info("upserted user", slog.String("id", u.ID), slog.String("email", u.Email))

		if issuer == nil {
			continue
		}
		token, err := issuer.Issue(u, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.ID)
		}
		fmt.Printf("%s\t%s\n", u.ID, token)
	}
	if issuer == nil {
		slog.Info("no JWT secret given, skipping token output")
	}
	return nil
}
