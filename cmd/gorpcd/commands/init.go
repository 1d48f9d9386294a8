package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/gorpcd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var path string
	var err error

	if cfg := GetConfigFile(); cfg != "" {
		path = cfg
		err = config.InitConfigToPath(path, initForce)
	} else {
		path, err = config.InitConfig(initForce)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Start the server with: gorpcd start")
	return nil
}
