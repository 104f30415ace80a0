package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type RemoteServerConf struct {
	Host string
	Port int
}

var ServerConfig RemoteServerConf

var rootCmd = &cobra.Command{
	Use:   "digestledge-cli",
	Short: "CLI utility for Digestledge",
	Long:  `CLI utility to submit digest requests to a Digestledge dispatcher.`,
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Requests the digest of an object",
	Run:   dispatch,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the dispatcher status",
	Run:   getStatus,
}

var objectKey, algorithm string

func Init() {
	rootCmd.PersistentFlags().StringVarP(&ServerConfig.Host, "host", "H", ServerConfig.Host, "remote Digestledge host")
	rootCmd.PersistentFlags().IntVarP(&ServerConfig.Port, "port", "P", ServerConfig.Port, "remote Digestledge port")

	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().StringVarP(&objectKey, "key", "k", "", "key of the object to digest")
	dispatchCmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "digest algorithm (default SHA-256)")

	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
