package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/md-rashed-zaman/frontdesk/libs/db"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/storage"
)

var CLI struct {
	Version     kong.VersionFlag
	DatabaseURL string `help:"Postgres connection string." env:"DATABASE_URL" required:""`
	TZName      string `help:"Business zone name." env:"BUSINESS_TZ_NAME" default:"JST"`
	TZOffset    int    `help:"Business zone offset in minutes east of UTC." env:"BUSINESS_TZ_OFFSET_MINUTES" default:"540"`
	DemoDate    string `help:"Pin today to this business date (YYYY-MM-DD)." env:"DEMO_DATE"`

	Migrate MigrateCmd `cmd:"" help:"Apply the database schema."`
	Patient struct {
		Upsert PatientUpsertCmd `cmd:"" help:"Create or update a patient."`
	} `cmd:"" help:"Manage patients."`
	Book       BookCmd       `cmd:"" help:"Book an appointment."`
	Reschedule RescheduleCmd `cmd:"" help:"Move an appointment."`
	Status     StatusCmd     `cmd:"" help:"Complete, cancel or mark an appointment as no-show."`
	Resolve    ResolveCmd    `cmd:"" help:"Mark an appointment's admin memo as handled."`
	Day        DayCmd        `cmd:"" help:"List appointments for business days."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("frontdeskctl"),
		kong.Description("Front desk appointment scheduling from the command line"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, CLI.DatabaseURL, db.PoolConfig{MaxConns: 2})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	zone := scheduling.NewZone(CLI.TZName, time.Duration(CLI.TZOffset)*time.Minute)
	clock, err := scheduling.NewClock(CLI.DemoDate != "", CLI.DemoDate, zone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := storage.NewPostgres(pool)
	appCtx := &Context{
		Ctx:     ctx,
		Store:   store,
		Migrate: store.Migrate,
		Manager: scheduling.NewManager(store, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), scheduling.Config{Zone: zone}),
		Out:     os.Stdout,
	}

	if err := kctx.Run(appCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
