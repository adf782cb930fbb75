// Animedex - Anime Catalog Deduplication and Recommendation Scoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/animedex

// Package storage persists trained model factors as versioned files.
//
// Every training run that succeeds writes one file per version:
//
//	{name}_v{version}.gob.gz
//
// The file is a gob-encoded header (ModelMetadata) followed by the
// gzip-compressed gob encoding of the model state. A SHA-256 checksum of the
// uncompressed state is stored in the header and verified on Load, so a
// truncated or edited file is refused instead of serving garbage factors.
//
// Files are written to a temporary name and renamed into place. Which version
// serves is decided by the warehouse's model_versions table, not by the file
// system; Prune only removes files of versions that are no longer needed for
// rollback.
//
// # Usage
//
//	store, err := storage.NewStore(cfg.Collab.ModelDir)
//	if err != nil {
//	    return err
//	}
//	meta := storage.ModelMetadata{TrainedAt: now, UserCount: len(model.Users)}
//	if err := store.Save(ctx, collab.Algorithm, version, model, meta); err != nil {
//	    return err
//	}
//
//	var model collab.Model
//	if _, err := store.Load(ctx, collab.Algorithm, version, &model); err != nil {
//	    return err
//	}
//	model.Index()
package storage
