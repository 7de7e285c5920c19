package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hydrocore/internal/domain/calibration"
	"hydrocore/internal/domain/model"
)

func devicesCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage the device registry",
	}
	cmd.AddCommand(registerCmd(flags), listCmd(flags))
	return cmd
}

func registerCmd(flags *globalFlags) *cobra.Command {
	var (
		device            model.Device
		calib             model.Calibration
		moistureThreshold float64
		lightThreshold    float64
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add a device to the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("moisture-threshold") {
				device.MoistureThreshold = &moistureThreshold
			}
			if cmd.Flags().Changed("light-threshold") {
				device.LightThreshold = &lightThreshold
			}
			if !calib.IsEmpty() {
				if err := calibration.Validate(&calib); err != nil {
					return err
				}
				device.Calibration = &calib
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.registry.Create(cmd.Context(), &device); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", device.Name, device.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&device.Name, "name", "", "Device name (required)")
	f.StringVar(&device.MACAddress, "mac", "", "Agent MAC address")
	f.BoolVar(&device.AutoMode, "auto", false, "Enable auto mode")
	f.Float64Var(&moistureThreshold, "moisture-threshold", model.DefaultMoistureThreshold, "Soil moisture threshold")
	f.Float64Var(&lightThreshold, "light-threshold", model.DefaultLightThreshold, "Light threshold")
	f.StringVar(&calib.TemperatureFormula, "temperature-formula", "", "Calibration formula over x for temperature")
	f.StringVar(&calib.HumidityFormula, "humidity-formula", "", "Calibration formula over x for humidity")
	f.StringVar(&calib.MoistureFormula, "moisture-formula", "", "Calibration formula over x for soil moisture")
	f.StringVar(&calib.LightFormula, "light-formula", "", "Calibration formula over x for light")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			st, err := openStores(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.close()

			devices, err := st.registry.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tMAC\tAUTO\tMOISTURE\tLIGHT\tPUMP\tLED\tPENDING")
			for _, d := range devices {
				pending := "-"
				if d.PendingCommand != nil {
					pending = string(*d.PendingCommand)
				}
				mac := d.MACAddress
				if mac == "" {
					mac = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%t\t%t\t%s\n",
					d.Name, mac, d.AutoMode,
					strconv.FormatFloat(d.EffectiveMoistureThreshold(), 'f', -1, 64),
					strconv.FormatFloat(d.EffectiveLightThreshold(), 'f', -1, 64),
					d.PumpOn, d.LEDOn, pending)
			}
			return w.Flush()
		},
	}
}
