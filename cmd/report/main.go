// Command report exports a tenant's yearly and weekly order metrics as an xlsx workbook,
// either to a local file or to the configured Cloud Storage exports bucket.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/m5zonk/api/internal/di"
	"github.com/m5zonk/api/internal/platform/observability"
	platformstorage "github.com/m5zonk/api/internal/platform/storage"
	"github.com/m5zonk/api/internal/reports"
	"github.com/m5zonk/api/internal/services"
)

type options struct {
	tenantID string
	year     int
	month    int
	lang     string
	out      string
	upload   bool
}

func main() {
	opts, err := parseFlags(os.Args[1:], time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(2)
	}

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("report")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("report failed", zap.Error(err))
		os.Exit(1)
	}
}

func parseFlags(args []string, now time.Time) (options, error) {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.tenantID, "tenant", "", "tenant (admin) id")
	fs.IntVar(&opts.year, "year", now.Year(), "calendar year to export")
	fs.IntVar(&opts.month, "month", 0, "month (1-12) for the weekly sheet; 0 skips it")
	fs.StringVar(&opts.lang, "lang", "en", "BCP 47 language tag used for number formatting")
	fs.StringVar(&opts.out, "out", "", "local output path; defaults to the report file name")
	fs.BoolVar(&opts.upload, "upload", false, "upload to the exports bucket instead of writing locally")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.tenantID = strings.TrimSpace(opts.tenantID)
	if opts.tenantID == "" {
		return options{}, errors.New("-tenant is required")
	}
	if opts.month < 0 || opts.month > 12 {
		return options{}, fmt.Errorf("-month must be between 1 and 12, got %d", opts.month)
	}
	if opts.upload && opts.out != "" {
		return options{}, errors.New("-out and -upload are mutually exclusive")
	}
	return opts, nil
}

func run(ctx context.Context, logger *zap.Logger, opts options) error {
	tag, err := language.Parse(opts.lang)
	if err != nil {
		return fmt.Errorf("parse -lang: %w", err)
	}

	rt, err := di.NewRuntime(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Warn("runtime close error", zap.Error(err))
		}
	}()
	svc := rt.Container.Services

	cfg, err := svc.Config.GetConfig(ctx, opts.tenantID)
	if err != nil {
		return fmt.Errorf("load tenant config: %w", err)
	}
	yearly, err := svc.Metrics.GetYearlyMetrics(ctx, opts.tenantID, opts.year)
	if err != nil {
		return fmt.Errorf("load yearly metrics: %w", err)
	}
	report := reports.MetricsReport{
		TenantID: opts.tenantID,
		Currency: cfg.Currency,
		Language: tag,
		Yearly:   yearly,
	}
	if opts.month > 0 {
		weekly, err := svc.Metrics.GetWeeklyMetrics(ctx, opts.tenantID, opts.year, opts.month)
		if err != nil {
			return fmt.Errorf("load weekly metrics: %w", err)
		}
		report.Weekly = &weekly
	}

	var buf bytes.Buffer
	if err := reports.Write(&buf, report); err != nil {
		return err
	}

	if opts.upload {
		return upload(ctx, logger, rt.Config.Storage.ExportsBucket, report, &buf)
	}

	path := opts.out
	if path == "" {
		path = report.FileName()
	}
	if err := os.WriteFile(filepath.Clean(path), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fields := append(logFields(opts, yearly), zap.String("path", path), zap.Int("bytes", buf.Len()))
	logger.Info("report written", fields...)
	return nil
}

func upload(ctx context.Context, logger *zap.Logger, bucket string, report reports.MetricsReport, buf *bytes.Buffer) error {
	if strings.TrimSpace(bucket) == "" {
		return errors.New("API_STORAGE_EXPORTS_BUCKET is required for -upload")
	}
	object, err := platformstorage.BuildObjectPath(platformstorage.PurposeMetricsReport, platformstorage.PathParams{
		TenantID: report.TenantID,
		Year:     report.Yearly.Year,
		FileName: report.FileName(),
	})
	if err != nil {
		return err
	}

	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("initialise storage client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()
	uploader, err := platformstorage.NewUploader(client)
	if err != nil {
		return err
	}
	n, err := uploader.Upload(ctx, bucket, object, reports.ContentType, buf)
	if err != nil {
		return err
	}
	logger.Info("report uploaded",
		zap.String("bucket", bucket),
		zap.String("object", object),
		zap.Int64("bytes", n),
	)
	return nil
}

func logFields(opts options, yearly services.YearlyMetrics) []zap.Field {
	return []zap.Field{
		zap.String("tenantId", opts.tenantID),
		zap.Int("year", yearly.Year),
		zap.Int("months", len(yearly.Months)),
		zap.Int64("orders", yearly.Totals.OrderCount),
	}
}
