package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/samogod/patentvae/pkg/config"
	"github.com/samogod/patentvae/pkg/database"
	"github.com/samogod/patentvae/pkg/dataset"
	"github.com/samogod/patentvae/pkg/elastic"

	"github.com/sirupsen/logrus"
)

var DebugLog func(string, ...interface{})

type Orchestrator struct {
	config        config.Config
	configManager *config.Manager
	logger        *logrus.Logger
	db            *database.DB
}

type CheckOptions struct {
	Overrides config.Overrides
	// DataRoot replaces the directory relative data paths resolve against.
	DataRoot string
	SkipData bool
	// RecordAs stores the effective params in the run registry under this name.
	RecordAs string
}

type CheckResult struct {
	Params       config.Params
	Report       *dataset.Report
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	Recorded     bool
	RecordStatus string
	Success      bool
	Errors       []error
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var levelText string
	switch entry.Level {
	case logrus.InfoLevel:
		levelText = "[INF]"
	case logrus.WarnLevel:
		levelText = "[WARN]"
	case logrus.ErrorLevel:
		levelText = "[ERR]"
	case logrus.DebugLevel:
		levelText = "[DBG]"
	default:
		levelText = "[???]"
	}
	return []byte(fmt.Sprintf("%s %s\n", levelText, entry.Message)), nil
}

func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&customFormatter{})
	return logger
}

func NewOrchestrator(configPath string) (*Orchestrator, error) {
	logger := NewLogger()

	configManager := config.NewManager(configPath)
	if err := configManager.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg, err := configManager.Config()
	if err != nil {
		return nil, err
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Warnf("Run registry initialization failed: %v", err)
	}

	return &Orchestrator{
		config:        cfg,
		configManager: configManager,
		logger:        logger,
		db:            db,
	}, nil
}

func (o *Orchestrator) SetOutput(w io.Writer) {
	o.logger.SetOutput(w)
}

func (o *Orchestrator) Logger() *logrus.Logger {
	return o.logger
}

func (o *Orchestrator) GetDB() *database.DB {
	return o.db
}

func (o *Orchestrator) Config() config.Config {
	return o.config
}

func (o *Orchestrator) ConfigPath() string {
	return o.configManager.Path()
}

func (o *Orchestrator) Close() error {
	if o.db != nil {
		return o.db.Close()
	}
	return nil
}

// Params returns the loaded record with overrides applied, validated.
func (o *Orchestrator) Params(overrides config.Overrides) (config.Params, error) {
	params := o.config.Params.ApplyOverrides(overrides)
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func (o *Orchestrator) Check(ctx context.Context, opts CheckOptions) (*CheckResult, error) {
	result := &CheckResult{
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if DebugLog != nil {
		DebugLog("checking params from %s", o.configManager.Path())
	}

	params, err := o.Params(opts.Overrides)
	result.Params = params
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				o.logger.Errorf("%s", f.Error())
			}
		}
		result.Errors = append(result.Errors, err)
		return result, nil
	}
	o.logger.Infof("Params valid (enc=%s dec=%s nz=%d batch=%d epochs=%d)",
		params.EncType, params.DecType, params.NZ, params.BatchSize, params.Epochs)

	if !opts.SkipData {
		base := opts.DataRoot
		if base == "" {
			base = o.configManager.BaseDir()
		}

		report, err := dataset.Check(ctx, base, params.DataFiles())
		if err != nil {
			return result, fmt.Errorf("data check interrupted: %w", err)
		}
		result.Report = report

		for _, f := range report.Files {
			if f.OK() {
				o.logger.Infof("%s data: %s (%d lines)", f.Role, f.Resolved, f.Lines)
			} else {
				o.logger.Errorf("%s data: %v", f.Role, f.Err)
			}
		}
		if err := report.Err(); err != nil {
			result.Errors = append(result.Errors, err)
		}
	}

	if opts.RecordAs != "" {
		if len(result.Errors) > 0 {
			o.logger.Warnf("Not recording run %s: check failed", opts.RecordAs)
		} else if !o.db.IsEnabled() {
			o.logger.Warn("Run registry is not enabled, skipping record")
		} else {
			status, err := o.db.RecordRun(opts.RecordAs, params)
			if err != nil {
				o.logger.Errorf("Failed to record run %s: %v", opts.RecordAs, err)
				result.Errors = append(result.Errors, err)
			} else {
				result.Recorded = true
				result.RecordStatus = status
				o.logger.Infof("Run %s recorded as %s", opts.RecordAs, status)
			}
		}
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

// Publish indexes the effective params of run into Elasticsearch.
func (o *Orchestrator) Publish(ctx context.Context, run string, overrides config.Overrides) (*elastic.Document, error) {
	params, err := o.Params(overrides)
	if err != nil {
		return nil, err
	}

	doc, err := elastic.NewDocument(run, params, time.Now())
	if err != nil {
		return nil, err
	}

	client, err := elastic.New(elastic.FromConfig(o.config.Elasticsearch))
	if err != nil {
		return nil, err
	}

	if err := client.IndexDocument(ctx, doc); err != nil {
		return nil, err
	}
	o.logger.Infof("Published run %s to index %s", run, client.Index())
	return &doc, nil
}

// PublishFile bulk-indexes a JSONL export produced by Export.
func (o *Orchestrator) PublishFile(ctx context.Context, path string) (int, error) {
	client, err := elastic.New(elastic.FromConfig(o.config.Elasticsearch))
	if err != nil {
		return 0, err
	}

	n, err := client.IndexJSONLinesFile(ctx, path)
	if err != nil {
		return n, err
	}
	o.logger.Infof("Indexed %d documents from %s into %s", n, path, client.Index())
	return n, nil
}

// Export appends the effective params of run to a JSONL file.
func (o *Orchestrator) Export(run, path string, overrides config.Overrides) (*elastic.Document, error) {
	params, err := o.Params(overrides)
	if err != nil {
		return nil, err
	}

	doc, err := elastic.NewDocument(run, params, time.Now())
	if err != nil {
		return nil, err
	}

	if err := elastic.WriteJSONLines(path, doc); err != nil {
		return nil, err
	}
	if DebugLog != nil {
		DebugLog("exported run %s to %s", run, path)
	}
	return &doc, nil
}
