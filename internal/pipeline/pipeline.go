// Package pipeline implements the batch stages that move forecasts from
// extractor CSV output through raw landing, transform, staging, the
// warehouse fact table and the serving marts.
package pipeline

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"weather-etl/internal/config"
	"weather-etl/internal/dimension"
	"weather-etl/internal/lineage"
	"weather-etl/internal/model"
	"weather-etl/internal/store"
)

// Stage names accepted by Run.
const (
	StageRaw       = "raw"
	StageTransform = "transform"
	StageStaging   = "staging"
	StageWarehouse = "warehouse"
	StageMart      = "mart"
	StageDims      = "dims"
	StageAll       = "all"
)

// Pipeline owns the three logical databases and runs stages against them.
type Pipeline struct {
	cfg         *config.Config
	stagingDB   *sql.DB
	warehouseDB *sql.DB
	martDB      *sql.DB
	tracker     *lineage.Tracker
}

// New opens the three databases and ensures their schemas.
func New(cfg *config.Config) (*Pipeline, error) {
	stagingDB, err := store.Open(cfg.StagingDB)
	if err != nil {
		return nil, err
	}
	warehouseDB, err := store.Open(cfg.WarehouseDB)
	if err != nil {
		stagingDB.Close()
		return nil, err
	}
	martDB, err := store.Open(cfg.MartDB)
	if err != nil {
		stagingDB.Close()
		warehouseDB.Close()
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		stagingDB:   stagingDB,
		warehouseDB: warehouseDB,
		martDB:      martDB,
		tracker:     lineage.New(stagingDB),
	}
	if err := p.initSchemas(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) initSchemas() error {
	if err := store.InitStaging(p.stagingDB); err != nil {
		return err
	}
	if err := store.InitStagingDimDate(p.stagingDB); err != nil {
		return err
	}
	if err := store.InitWarehouse(p.warehouseDB); err != nil {
		return err
	}
	return store.InitMart(p.martDB, p.cfg.MartTables())
}

// Close releases the database handles.
func (p *Pipeline) Close() {
	p.stagingDB.Close()
	p.warehouseDB.Close()
	p.martDB.Close()
}

// Tracker exposes the lineage tracker, for serving batch records over HTTP.
func (p *Pipeline) Tracker() *lineage.Tracker { return p.tracker }

// StagingDB exposes the staging handle, for run listings over HTTP.
func (p *Pipeline) StagingDB() *sql.DB { return p.stagingDB }

// Run executes the named stage, or the full raw-to-mart sequence for "all",
// and records the invocation in pipeline_runs. The dimension seed stage is
// deliberately not part of "all": the calendar is a one-time load.
func (p *Pipeline) Run(stage string) error {
	runID := uuid.NewString()
	if err := store.SaveRun(p.stagingDB, runID, stage); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	fmt.Printf("🚀 Pipeline run %s (stage: %s)\n", runID, stage)

	err := p.run(runID, stage)

	status := model.StatusSuccess
	errMsg := ""
	if err != nil && !model.ExpectedEmpty(err) {
		status = model.StatusFailed
		errMsg = err.Error()
	}
	if finErr := store.FinishRun(p.stagingDB, runID, status, errMsg); finErr != nil {
		fmt.Printf("⚠️ could not finish run record %s: %v\n", runID, finErr)
	}
	return err
}

func (p *Pipeline) run(runID, stage string) error {
	switch stage {
	case StageRaw, StageTransform, StageStaging, StageWarehouse, StageMart, StageDims:
		return p.runStage(runID, stage)
	case StageAll:
		for _, s := range []string{StageRaw, StageTransform, StageStaging, StageWarehouse, StageMart} {
			if err := p.runStage(runID, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func (p *Pipeline) runStage(runID, stage string) error {
	if err := store.UpdateRunStage(p.stagingDB, runID, stage); err != nil {
		fmt.Printf("⚠️ could not update run stage: %v\n", err)
	}

	var err error
	switch stage {
	case StageRaw:
		_, err = LoadRaw(p.stagingDB, p.tracker, p.cfg.OutputDir)
	case StageTransform:
		_, err = TransformBatch(p.stagingDB, p.tracker)
	case StageStaging:
		_, err = MergeStaging(p.stagingDB)
	case StageWarehouse:
		_, err = LoadWarehouse(p.stagingDB, p.warehouseDB, p.cfg.DumpDir)
	case StageMart:
		builder := NewMartBuilder(p.warehouseDB, p.martDB, p.cfg.Locations, p.cfg.LogDir)
		_, err = builder.Build()
	case StageDims:
		_, err = dimension.LoadDimDate(p.cfg.DimDateCSV, p.stagingDB, p.warehouseDB)
		if err == nil {
			err = dimension.UpsertLocations(p.warehouseDB, p.cfg.Locations)
		}
	}
	if err != nil {
		return &model.StageError{Stage: stage, Err: err}
	}
	return nil
}
