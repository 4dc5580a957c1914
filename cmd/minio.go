package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"torb/config"
	"torb/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `List the published HLS trees in the MinIO bucket, or show aggregate bucket statistics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO config: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := storage.NewMinioClient(
			cfg.MinioEndpoint,
			cfg.MinioAccessKey,
			cfg.MinioSecretKey,
			cfg.MinioBucket,
			cfg.MinioUseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if minioStats {
			stats, err := client.Stats(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("Failed to read bucket stats: %v", err)
			}
			fmt.Printf("Objects: %d\n", stats.TotalObjects)
			fmt.Printf("Total size: %s\n", storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Printf("Last modified: %s\n", stats.LastModified.Format(time.RFC3339))
			}
			return
		}

		if err := client.PrintTree(ctx, minioPrefix); err != nil {
			log.Fatalf("Failed to list bucket objects: %v", err)
		}
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "streams/", "object prefix to inspect")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "show aggregate statistics instead of the object tree")
	rootCmd.AddCommand(minioCmd)
}
