package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/litcat/litrec/internal/config"
	"github.com/litcat/litrec/internal/snapshot"
)

var hashesProvider string

// HashesResult is the response for hashes backup and restore.
type HashesResult struct {
	Action   string `json:"action"`
	Provider string `json:"provider,omitempty"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Hashes   int    `json:"hashes"`
}

func init() {
	hashesCmd.PersistentFlags().StringVar(&hashesProvider, "provider", "", "Provider whose hashes are copied (default: all)")
	hashesCmd.AddCommand(hashesBackupCmd)
	hashesCmd.AddCommand(hashesRestoreCmd)
	rootCmd.AddCommand(hashesCmd)
}

var hashesCmd = &cobra.Command{
	Use:   "hashes",
	Short: "Back up or restore content hashes in S3",
	Long: `Back up or restore the stored content hashes that let reconcile skip
unchanged records. The bucket is set by s3.bucket in the config file or
LITREC_S3_BUCKET.`,
}

var hashesBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload content hashes to S3",
	Args:  cobra.NoArgs,
	RunE:  runHashesBackup,
}

var hashesRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Download content hashes from S3",
	Args:  cobra.NoArgs,
	RunE:  runHashesRestore,
}

func runHashesBackup(cmd *cobra.Command, args []string) error {
	return runHashes("backup")
}

func runHashesRestore(cmd *cobra.Command, args []string) error {
	return runHashes("restore")
}

func runHashes(action string) error {
	cfg := mustLoadConfig()
	log := mustNewLogger(cfg)
	defer log.Sync()
	db := mustOpenDatabase(cfg)
	defer db.Close()

	ctx := context.Background()
	store := mustSnapshotStore(ctx, cfg, log)

	result := HashesResult{
		Action:   action,
		Provider: hashesProvider,
		Bucket:   cfg.S3.Bucket,
		Key:      store.Key(hashesProvider),
	}
	var err error
	if action == "backup" {
		_, result.Hashes, err = store.Backup(ctx, db, hashesProvider)
	} else {
		result.Hashes, err = store.Restore(ctx, db, hashesProvider)
	}
	exitOnError(err, action+" failed")

	if humanOutput {
		outputHuman("%s: %d hashes, s3://%s/%s\n", action, result.Hashes, result.Bucket, result.Key)
		return nil
	}
	return outputJSON(result)
}

func snapshotConfig(cfg *config.Config) snapshot.Config {
	return snapshot.Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		Prefix:          cfg.S3.Prefix,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	}
}

// mustSnapshotStore builds the S3 snapshot store, exits on error.
func mustSnapshotStore(ctx context.Context, cfg *config.Config, log *zap.Logger) *snapshot.Store {
	sc := snapshotConfig(cfg)
	client, err := snapshot.NewS3Client(ctx, sc)
	if errors.Is(err, snapshot.ErrNoBucket) {
		exitWithError(ExitConfigError, "no snapshot bucket configured\n\nSet s3.bucket in the config file or LITREC_S3_BUCKET.")
	}
	exitOnError(err, "connecting to S3")
	return snapshot.New(client, sc, log)
}
