package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crosslabs/camhub/internal/config"
	"github.com/crosslabs/camhub/internal/inventory"
)

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "List configured cameras",
	Long: `List the cameras in the inventory.

Cameras are defined in the config file; each entry names the camera's
command endpoint host, credentials, and MJPEG stream URL.`,
	Example: `  # List cameras in table format (default)
  camhub cameras

  # List cameras in JSON format
  camhub cameras --format json`,
	RunE: runCameras,
}

var camerasFormat string

func init() {
	rootCmd.AddCommand(camerasCmd)

	camerasCmd.Flags().StringVarP(&camerasFormat, "format", "f", "table", "output format (table or json)")
}

func runCameras(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	inv := inventory.NewStore(configMgr.Get().Cameras)
	cameras := inv.List()

	switch camerasFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cameras)
	case "table":
		return printCamerasTable(cameras)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", camerasFormat)
	}
}

func printCamerasTable(cameras []config.Camera) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tNAME\tHOST\tSTREAM")
	fmt.Fprintln(w, "--\t----\t----\t------")

	for _, cam := range cameras {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cam.ID, cam.Name, cam.Host, cam.StreamURL)
	}

	return nil
}
