package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/frontdesk/services/scheduling-service/internal/scheduling"
)

type PatientStore interface {
	UpsertPatient(ctx context.Context, p model.Patient) error
}

// Context is handed to every command's Run.
type Context struct {
	Ctx     context.Context
	Store   PatientStore
	Migrate func(context.Context) error
	Manager *scheduling.Manager
	Out     io.Writer
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *Context) error {
	if err := ctx.Migrate(ctx.Ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(ctx.Out, "schema up to date")
	return nil
}

type PatientUpsertCmd struct {
	ID    string `arg:"" help:"Patient id."`
	Name  string `help:"Display name."`
	Phone string `help:"Contact phone."`
}

func (c *PatientUpsertCmd) Run(ctx *Context) error {
	id := strings.TrimSpace(c.ID)
	if id == "" {
		return fmt.Errorf("patient id is required")
	}
	if err := ctx.Store.UpsertPatient(ctx.Ctx, model.Patient{ID: id, Name: c.Name, Phone: c.Phone}); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "patient %s saved\n", id)
	return nil
}

type BookCmd struct {
	Patient   string `required:"" help:"Patient id."`
	At        string `required:"" help:"Start time, RFC3339 or YYYY-MM-DDTHH:MM in the business zone."`
	Duration  int    `help:"Duration in minutes." default:"60"`
	Staff     string `help:"Staff member id; leave empty for unassigned."`
	Memo      string `help:"Note visible to the patient."`
	AdminMemo string `help:"Staff-internal note that needs follow-up."`
}

func (c *BookCmd) Run(ctx *Context) error {
	start, err := ctx.Manager.Zone().ParseInstant(c.At)
	if err != nil {
		return err
	}
	duration := c.Duration
	appt, err := ctx.Manager.Create(ctx.Ctx, scheduling.CreateRequest{
		PatientID:       c.Patient,
		StaffID:         &c.Staff,
		StartAt:         start,
		DurationMinutes: &duration,
		Memo:            c.Memo,
		AdminMemo:       c.AdminMemo,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "booked %s\n", appt.ID)
	printAppointment(ctx, appt)
	return nil
}

type RescheduleCmd struct {
	ID       string `arg:"" help:"Appointment id."`
	At       string `required:"" help:"New start time."`
	Duration int    `help:"New duration in minutes; 0 keeps the current one."`
}

func (c *RescheduleCmd) Run(ctx *Context) error {
	start, err := ctx.Manager.Zone().ParseInstant(c.At)
	if err != nil {
		return err
	}
	req := scheduling.RescheduleRequest{StartAt: start}
	if c.Duration != 0 {
		req.DurationMinutes = &c.Duration
	}
	appt, err := ctx.Manager.Reschedule(ctx.Ctx, c.ID, req)
	if err != nil {
		return err
	}
	printAppointment(ctx, appt)
	return nil
}

type StatusCmd struct {
	ID     string `arg:"" help:"Appointment id."`
	Status string `arg:"" enum:"completed,cancelled,no_show" help:"New status (completed, cancelled, no_show)."`
}

func (c *StatusCmd) Run(ctx *Context) error {
	appt, err := ctx.Manager.Transition(ctx.Ctx, c.ID, model.Status(c.Status))
	if err != nil {
		return err
	}
	printAppointment(ctx, appt)
	return nil
}

type ResolveCmd struct {
	ID string `arg:"" help:"Appointment id."`
}

func (c *ResolveCmd) Run(ctx *Context) error {
	appt, err := ctx.Manager.ResolveAdminMemo(ctx.Ctx, c.ID)
	if err != nil {
		return err
	}
	printAppointment(ctx, appt)
	return nil
}

type DayCmd struct {
	Date       string `arg:"" help:"First day (YYYY-MM-DD or 'today')." default:"today"`
	To         string `help:"Last day, inclusive."`
	Staff      string `help:"Only this staff member."`
	ActiveOnly bool   `help:"Hide completed, cancelled and no-show appointments."`
}

func (c *DayCmd) Run(ctx *Context) error {
	first := ctx.Manager.Today()
	if c.Date != "today" {
		d, err := scheduling.ParseDate(c.Date)
		if err != nil {
			return err
		}
		first = d
	}
	var last scheduling.CalendarDate
	if c.To != "" {
		d, err := scheduling.ParseDate(c.To)
		if err != nil {
			return err
		}
		last = d
	}

	appts, err := ctx.Manager.ListForDays(ctx.Ctx, &c.Staff, first, last, c.ActiveOnly)
	if err != nil {
		return err
	}

	title := first.String()
	if !last.IsZero() && last != first {
		title += " to " + last.String()
	}
	fmt.Fprintf(ctx.Out, "Appointments for %s (%s):\n\n", title, ctx.Manager.Zone().Name())
	if len(appts) == 0 {
		fmt.Fprintln(ctx.Out, "  No appointments")
		return nil
	}
	for _, appt := range appts {
		printAppointment(ctx, appt)
	}
	return nil
}

func printAppointment(ctx *Context, appt model.Appointment) {
	zone := ctx.Manager.Zone()
	staff := appt.Staff()
	if staff == "" {
		staff = "unassigned"
	}
	memo := ""
	if appt.AdminMemo != "" && !appt.IsMemoResolved {
		memo = "  [admin memo open]"
	}
	fmt.Fprintf(ctx.Out, "%s  %s-%s  %-12s %-10s %s  %s%s\n",
		appt.StartAt.In(zone.Location()).Format("2006-01-02"),
		appt.StartAt.In(zone.Location()).Format("15:04"),
		appt.EndAt.In(zone.Location()).Format("15:04"),
		staff,
		appt.Status,
		appt.PatientID,
		appt.ID,
		memo,
	)
}
