// Command timetablectl inspects and books doctor timetables against the
// portal REST API.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/medportal/timetable/services/timetable-service/internal/portal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("TIMETABLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "timetablectl",
		Short:         "Weekly appointment timetable tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.String("portal-url", "http://localhost:5000", "portal REST base url (TIMETABLE_PORTAL_URL)")
	flags.String("token", "", "bearer token for the portal (TIMETABLE_TOKEN)")
	flags.Duration("timeout", 10*time.Second, "portal request timeout")
	flags.String("grpc-addr", "localhost:9090", "timetable service gRPC address (TIMETABLE_GRPC_ADDR)")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(gridCmd(v))
	rootCmd.AddCommand(listCmd(v))
	rootCmd.AddCommand(bookCmd(v))
	rootCmd.AddCommand(healthCmd(v))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newClient(v *viper.Viper) (*portal.Client, error) {
	return portal.NewClient(portal.Config{
		BaseURL: v.GetString("portal-url"),
		Timeout: v.GetDuration("timeout"),
		Token:   v.GetString("token"),
	})
}
