package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/txn-review/approvals/src/logging"
	"github.com/txn-review/approvals/src/server/fixtures"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Manage dev API fixture files",
}

var uploadKey string

var fixturesUploadCmd = &cobra.Command{
	Use:   "upload FILE",
	Short: "Validate a fixture file and copy it into fixture storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(cfg.LogLevel)
		path := args[0]
		key := uploadKey
		if key == "" {
			key = filepath.Base(path)
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		doc, err := fixtures.Decode(path, f)
		if err != nil {
			return err
		}
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}

		objects, err := newObjectStorage(cfg)
		if err != nil {
			return err
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if err := objects.Upload(cmd.Context(), key, f, contentType); err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d employees, %d transactions)\n",
			key, len(doc.Employees), len(doc.Transactions))
		return nil
	},
}

func init() {
	fixturesUploadCmd.Flags().StringVar(&uploadKey, "key", "", "destination key (default: file name)")
	fixturesCmd.AddCommand(fixturesUploadCmd)
}
