// Package tabexp provides an experiment harness for tabular regression,
// built around a housing-price benchmark dataset.
//
// It covers the full loop of a modelling experiment: loading and splitting
// the data, training a configured model with early stopping, and recording
// parameters, per-epoch metrics and artifacts in a local SQLite tracking
// store.
//
// # Model families
//
// Four regressor families share the same Fit/Predict surface:
//
//   - ensemble: RandomForestRegressor (bagged regression trees)
//   - boosting: GradientBoostingRegressor (residual boosting with shrinkage)
//   - neural: MLPRegressor (ReLU stack with dropout and AdamW)
//   - neural: FTTransformerRegressor (feature tokens plus a CLS token,
//     with linear, periodic, quantile-binned or target-binned numerical
//     embeddings)
//
// # Quick Start
//
// Describe an experiment in YAML and run it from the CLI:
//
//	tabexp run -c experiment.yaml
//	tabexp runs list
//	tabexp runs show <run-id>
//
// Or drive the harness from Go:
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/tabexp-labs/tabexp/dataset"
//	    "github.com/tabexp-labs/tabexp/experiment"
//	    "github.com/tabexp-labs/tabexp/tracking"
//	)
//
//	func main() {
//	    table, err := dataset.LoadCSV("housing.csv", "median_house_value")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    parts, err := dataset.Prepare(table, dataset.PrepareOptions{
//	        TestFraction: 0.2,
//	        ValFraction:  0.2,
//	        Seed:         42,
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    store, err := tracking.OpenSQLite("tabexp.db")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer store.Close()
//
//	    cfg := &experiment.Config{ /* ... */ }
//	    result, err := experiment.Execute(cfg, parts, store)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("run %s: test RMSE %.4f", result.RunID, result.TestRMSE)
//	}
//
// # Packages
//
//   - dataset: CSV loading, seeded splitting, leak-free scaling
//   - tree, ensemble, boosting: tree-based regressors
//   - neural: MLP and FT-Transformer with numerical embeddings
//   - experiment: configuration, early-stopping trainer, run orchestration
//   - tracking: run lifecycle and the SQLite store
//   - metrics, preprocessing, core/model: shared modelling primitives
//   - pkg/errors, pkg/log: structured errors and logging
package tabexp
