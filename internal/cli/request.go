package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/grussorusso/digestledge/internal/digest"
	"github.com/grussorusso/digestledge/utils"
)

func serverUrl(path string) string {
	return fmt.Sprintf("http://%s:%d%s", ServerConfig.Host, ServerConfig.Port, path)
}

func dispatch(cmd *cobra.Command, args []string) {
	if len(objectKey) < 1 {
		fmt.Printf("Invalid object key.\n")
		cmd.Help()
		return
	}

	request := digest.Request{ObjectKey: objectKey, Algorithm: algorithm}
	body, err := json.Marshal(request)
	if err != nil {
		cmd.Help()
		return
	}

	resp, err := utils.PostJson(serverUrl("/dispatch"), body)
	if err != nil {
		fmt.Printf("Dispatch failed: %v\n", err)
		if resp != nil {
			utils.PrintJsonResponse(resp.Body)
		}
		os.Exit(2)
	}
	utils.PrintJsonResponse(resp.Body)
}

func getStatus(cmd *cobra.Command, args []string) {
	resp, err := http.Get(serverUrl("/status"))
	if err != nil {
		fmt.Printf("Status request failed: %v\n", err)
		os.Exit(2)
	}
	utils.PrintJsonResponse(resp.Body)
}
