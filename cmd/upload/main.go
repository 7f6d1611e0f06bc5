// Command upload はファイルをアップロードサーバーへ再開可能な形で送信します。
//
//	upload --server http://localhost:8080 --token <jwt> --transfer <uuid> <path>
//	upload --transfer <uuid> --cancel <path>
//
// Ctrl-Cで一時停止し、同じ引数で再実行すると続きから再開します。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	flag "github.com/spf13/pflag"

	"github.com/webcoletivo/coletivosend/pkg/logger"
	"github.com/webcoletivo/coletivosend/pkg/uploader"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if uploader.HasCode(err, uploader.CodePaused) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	server := fs.String("server", "http://localhost:8080", "upload server base URL")
	token := fs.String("token", os.Getenv("COLETIVOSEND_TOKEN"), "access token (default $COLETIVOSEND_TOKEN)")
	transfer := fs.String("transfer", "", "transfer ID (UUID)")
	fileIDFlag := fs.String("file-id", "", "file ID (UUID). Derived from the transfer and path when empty")
	stateDir := fs.String("state-dir", defaultStateDir(), "directory for local progress records")
	concurrency := fs.Int("concurrency", 3, "parts uploaded in parallel")
	retries := fs.Int("retries", 3, "retries per part for transient failures")
	cancelUpload := fs.Bool("cancel", false, "abort the upload and discard local progress")
	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: upload [flags] <path>")
	}
	if *token == "" {
		return errors.New("--token or $COLETIVOSEND_TOKEN is required")
	}

	transferID, err := uuid.Parse(*transfer)
	if err != nil {
		return fmt.Errorf("invalid --transfer: %w", err)
	}

	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	fileID := uuid.NewSHA1(transferID, []byte(path))
	if *fileIDFlag != "" {
		if fileID, err = uuid.Parse(*fileIDFlag); err != nil {
			return fmt.Errorf("invalid --file-id: %w", err)
		}
	}

	logCfg := logger.DefaultConfig()
	logCfg.Format = "text"
	logCfg.Output = "stderr"
	logCfg.Level = "warn"
	if *verbose {
		logCfg.Level = "debug"
	}
	if err := logger.Setup(logCfg); err != nil {
		return err
	}

	client, err := uploader.NewHTTPClient(*server, uploader.StaticTokenSource(*token))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*stateDir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	store := uploader.NewProgressStore(osfs.New(*stateDir))

	cfg := uploader.DefaultConfig()
	cfg.Concurrency = *concurrency
	cfg.MaxRetries = *retries
	cfg.Logger = slog.Default()
	o := uploader.New(client, store, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cancelUpload {
		if err := o.Cancel(ctx, fileID); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "cancelled upload of %s\n", path)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	result, err := o.UploadFile(ctx, f, uploader.Request{
		TransferID: transferID,
		FileID:     fileID,
		FileName:   filepath.Base(path),
		FileSize:   info.Size(),
	}, printProgress)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		if uploader.HasCode(err, uploader.CodePaused) {
			fmt.Fprintln(os.Stderr, "paused; run the same command again to resume")
		}
		return err
	}

	fmt.Printf("%s\t%s\t%d\n", result.SessionID, result.StorageKey, result.Size)
	return nil
}

func printProgress(p uploader.Progress) {
	eta := "-"
	if p.ETA > 0 {
		eta = p.ETA.Round(time.Second).String()
	}
	fmt.Fprintf(os.Stderr, "\r%-9s %5.1f%%  %d/%d parts  %.1f KiB/s  eta %s   ",
		p.Status, p.Percent(), p.UploadedParts, p.TotalParts, p.BytesPerSecond/1024, eta)
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "coletivosend", "uploads")
	}
	return ".coletivosend-uploads"
}
