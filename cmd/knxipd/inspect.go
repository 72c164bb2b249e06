package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/knxip-device/internal/api"
	"github.com/nerrad567/knxip-device/internal/infrastructure/config"
	"github.com/nerrad567/knxip-device/internal/infrastructure/logging"
	"github.com/nerrad567/knxip-device/internal/knxip"
	"github.com/nerrad567/knxip-device/internal/nvstore"
)

// storeReport is the output of the inspect command.
type storeReport struct {
	Backend         string                   `json:"backend"`
	Path            string                   `json:"path,omitempty"`
	Size            int                      `json:"size"`
	ImageSize       int                      `json:"image_size"`
	Magic           string                   `json:"magic"`
	Expected        string                   `json:"expected_magic"`
	Valid           bool                     `json:"valid"`
	Erased          bool                     `json:"erased"`
	PhysicalAddress string                   `json:"physical_address,omitempty"`
	Assignments     []assignmentEntry        `json:"assignments,omitempty"`
	Config          []api.ConfigItemResponse `json:"config,omitempty"`
}

type assignmentEntry struct {
	ID       knxip.AssignmentID `json:"id"`
	Address  string             `json:"address"`
	Callback knxip.CallbackID   `json:"callback"`
}

func newInspectCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the contents of the non-volatile store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			report, err := inspectStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

// inspectStore reads the store without modifying it. When the image is
// valid the configuration is decoded through the application's items.
func inspectStore(ctx context.Context, cfg *config.Config) (storeReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	region, err := nvstore.Open(ctx, cfg.Storage)
	if err != nil {
		return storeReport{}, fmt.Errorf("opening storage: %w", err)
	}
	defer region.Close() //nolint:errcheck // read-only use

	caps := cfg.Device.Capacities
	img, err := knxip.Inspect(region, caps)
	if err != nil {
		return storeReport{}, fmt.Errorf("reading image: %w", err)
	}

	report := storeReport{
		Backend:   cfg.Storage.Backend,
		Path:      cfg.Storage.Path,
		Size:      region.Size(),
		ImageSize: knxip.ImageSize(caps),
		Magic:     fmt.Sprintf("%016X", img.Magic),
		Expected:  fmt.Sprintf("%016X", knxip.Magic(caps)),
		Valid:     img.Valid,
		Erased:    img.Erased,
	}
	if !img.Valid {
		return report, nil
	}

	report.PhysicalAddress = img.PhysicalAddress.PhysicalString()
	for _, a := range img.Assignments {
		report.Assignments = append(report.Assignments, assignmentEntry{ID: a.ID, Address: a.Address.String(), Callback: a.Callback})
	}

	quiet := logging.NewWithWriter(io.Discard, cfg.Logging, version)
	dev, _, err := newDevice(cfg, region, nil, quiet)
	if err != nil {
		return report, err
	}
	if _, err := dev.Load(); err != nil {
		return report, fmt.Errorf("decoding configuration: %w", err)
	}
	for _, item := range dev.ConfigItems() {
		report.Config = append(report.Config, configEntry(dev, item))
	}
	return report, nil
}

func configEntry(dev *knxip.Device, item knxip.ConfigItem) api.ConfigItemResponse {
	entry := api.ConfigItemResponse{
		ID:      item.ID,
		Kind:    item.Kind.String(),
		Name:    item.Name,
		Length:  item.Length,
		Enabled: item.Enabled(),
		Options: item.Options,
	}
	switch item.Kind {
	case knxip.ConfigString:
		entry.Value, _ = dev.ConfigString(item.ID)
	case knxip.ConfigInt:
		entry.Value, _ = dev.ConfigInt(item.ID)
	case knxip.ConfigBool:
		entry.Value, _ = dev.ConfigBool(item.ID)
	case knxip.ConfigOptions:
		entry.Value, _ = dev.ConfigOption(item.ID)
	case knxip.ConfigGA:
		if ga, err := dev.ConfigGA(item.ID); err == nil && !ga.IsZero() {
			entry.Value = ga.String()
		} else {
			entry.Value = ""
		}
	}
	return entry
}

func printReport(w io.Writer, r storeReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "backend\t%s\t%s\n", r.Backend, r.Path)
	fmt.Fprintf(tw, "size\t%d bytes (image %d)\n", r.Size, r.ImageSize)
	fmt.Fprintf(tw, "magic\t%s (expected %s)\n", r.Magic, r.Expected)

	switch {
	case r.Erased:
		fmt.Fprintln(tw, "state\terased")
	case !r.Valid:
		fmt.Fprintln(tw, "state\tinvalid, defaults will be used")
	default:
		fmt.Fprintln(tw, "state\tvalid")
		fmt.Fprintf(tw, "physical address\t%s\n", r.PhysicalAddress)
		fmt.Fprintf(tw, "\nASSIGNMENT\tADDRESS\tCALLBACK\n")
		for _, a := range r.Assignments {
			fmt.Fprintf(tw, "%d\t%s\t%d\n", a.ID, a.Address, a.Callback)
		}
		fmt.Fprintf(tw, "\nCONFIG\tNAME\tKIND\tVALUE\n")
		for _, c := range r.Config {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", c.ID, c.Name, c.Kind, c.Value)
		}
	}
	return tw.Flush()
}

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Erase the non-volatile store",
		Long:  "Erase the non-volatile store so the device starts from its factory defaults.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to erase without --yes")
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := resetStore(cmd.Context(), cfg.Storage); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "erased %s store %s\n", cfg.Storage.Backend, cfg.Storage.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm erasing the store")
	return cmd
}

func resetStore(ctx context.Context, cfg config.StorageConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	region, err := nvstore.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	if err := region.Erase(); err != nil {
		region.Close() //nolint:errcheck // erase error takes precedence
		return fmt.Errorf("erasing storage: %w", err)
	}
	return region.Close()
}
