// Package datexflat converts multiply-nested road-event XML documents
// (DATEX II situation publications) into flat Parquet tables suitable for
// columnar analytics.
//
// The converter walks the XML input event by event without loading the
// document into memory, flattens each situation record subtree into a flat
// row with underscore-joined column names, buffers rows into fixed-size
// chunks persisted as intermediate columnar files, and finally merges all
// chunks into one deduplicated output table.
//
// # Components
//
//   - pkg/xmlstream: streaming parser and flatten algorithm
//   - pkg/columnar: Parquet and Arrow IPC readers/writers
//   - internal/pipeline: chunking, merge, and deduplication engine
//   - pkg/config, pkg/logger, pkg/errors: configuration, structured
//     logging, and error taxonomy shared across components
//
// # Quick Start
//
//	cfg := config.DefaultConfig()
//
//	source, err := xmlstream.NewSource("feed.xml", cfg.Parser, logger)
//	if err != nil {
//	    return err
//	}
//	defer source.Close()
//
//	converter := pipeline.NewConverter(cfg, logger)
//	if err := converter.Run(ctx, source, "feed.parquet"); err != nil {
//	    return err
//	}
//
// The command line entry point lives in cmd/datexflat.
package datexflat
