package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atpline/cab/internal/trip"
)

func newTripCmd() *cobra.Command {
	var (
		configPath string
		showStops  bool
		showDocs   bool
	)

	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Show the assigned trips",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, sess, err := openSession(configPath)
			if err != nil {
				return err
			}
			client, err := buildGateway(cfg, st, sess)
			if err != nil {
				return err
			}

			svc := trip.NewService(client, newLogger(cmd.ErrOrStderr()))
			driver, trips, err := svc.Info(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Driver: %s\n", driver.FullName)

			if showDocs && len(driver.Docs) > 0 {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DOCUMENT\tNUMBER\tFROM\tTO")
				for _, d := range driver.Docs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Number, d.DateFrom, d.DateTo)
				}
				w.Flush()
			}

			if len(trips) == 0 {
				fmt.Fprintln(out, "No trips assigned")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VEHICLE\tNUMBER\tBEGIN\tEND\tDEPARTURE\tARRIVAL\tSTOPS")
			for _, t := range trips {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
					t.Vehicle, t.Number, t.DateBegin, t.DateEnd, t.Departure, t.Arrival, len(t.Stops))
			}
			w.Flush()

			if showStops {
				for _, t := range trips {
					fmt.Fprintf(out, "\nTrip %s stops:\n", t.Number)
					sw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					fmt.Fprintln(sw, "CLIENT\tDIVISION\tARRIVAL\tDEPARTURE\tCONTACTS\tNOTE")
					for _, s := range t.Stops {
						fmt.Fprintf(sw, "%s\t%s\t%s\t%s\t%s\t%s\n",
							s.Client, s.Division, s.Arrival, s.Departure, s.Contacts, s.Note)
					}
					sw.Flush()
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to cab config file")
	cmd.Flags().BoolVar(&showStops, "stops", false, "list every stop per trip")
	cmd.Flags().BoolVar(&showDocs, "docs", false, "list driver documents")
	return cmd
}
