package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medportal/timetable/libs/grpcx"
	"github.com/medportal/timetable/services/timetable-service/internal/booking"
	"github.com/medportal/timetable/services/timetable-service/internal/directory"
	"github.com/medportal/timetable/services/timetable-service/internal/timetable"
	"github.com/medportal/timetable/services/timetable-service/internal/week"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// referenceDate parses the --date flag; empty means today.
func referenceDate(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("date")
	if raw == "" {
		return time.Now(), nil
	}
	return week.ParseDate(raw)
}

func gridCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid <doctor-id>",
		Short: "Print a doctor's week as a Monday-Friday grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, err := referenceDate(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(v)
			if err != nil {
				return err
			}
			all, err := client.AppointmentsByDoctor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			monday := week.MondayOf(reference)
			grid := timetable.Build(directory.InWeek(all, monday), monday)
			return renderGrid(cmd.OutOrStdout(), grid)
		},
	}
	cmd.Flags().String("date", "", "any date in the week to show (YYYY-MM-DD)")
	return cmd
}

func listCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list <patient-id>",
		Short: "List a patient's appointments in chronological order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			appts, err := client.AppointmentsByPatient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			directory.SortChronologically(appts)
			return renderList(cmd.OutOrStdout(), appts)
		},
	}
}

func bookCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a slot for a patient if it is free",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patientID, _ := cmd.Flags().GetString("patient")
			doctorID, _ := cmd.Flags().GetString("doctor")
			clock, _ := cmd.Flags().GetString("time")
			if patientID == "" || doctorID == "" || clock == "" {
				return errors.New("--patient, --doctor, --date and --time are required")
			}
			date, err := referenceDate(cmd)
			if err != nil {
				return err
			}

			client, err := newClient(v)
			if err != nil {
				return err
			}
			all, err := client.AppointmentsByDoctor(cmd.Context(), doctorID)
			if err != nil {
				return err
			}
			rec := booking.NewReconciler(patientID, doctorID, client)
			rec.Refresh(directory.InWeek(all, week.MondayOf(date)))
			if err := rec.SelectSlot(date, clock); err != nil {
				return err
			}
			created, err := rec.Confirm(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "booked %s %s with %s (id %s)\n",
				week.FormatDate(created.Date), created.Time, created.DoctorID, created.ID)
			return nil
		},
	}
	cmd.Flags().String("patient", "", "patient id")
	cmd.Flags().String("doctor", "", "doctor id")
	cmd.Flags().String("date", "", "appointment date (YYYY-MM-DD)")
	cmd.Flags().String("time", "", "slot start, e.g. 09:30")
	return cmd
}

func healthCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query the timetable service gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			status, err := grpcx.CheckHealth(ctx, v.GetString("grpc-addr"), "timetable-service", 3*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}
}
