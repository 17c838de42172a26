// Package filesystem maps virtual file-space requests onto a real
// directory tree under one storage root.
//
// This package is organized into specialized modules:
//   - paths: virtual path normalization and escape-proof resolution
//   - metadata: file and folder metadata, recursive size aggregation
//   - directory: folder listings with search, sorting and pagination
//   - operations: create folder, delete, upload
//   - download, archives: file streams and deterministic folder archives
//   - trash: recoverable deletes, restore and retention purge
//   - locks: per-path advisory locks for mutating operations
//
// All operations:
//   - Resolve the path first, then evaluate permissions, then touch disk
//   - Report failures as *Error with a stable Kind
//   - Mention only virtual paths in user-visible messages
//
// Listings take no locks. A child that vanishes while a listing runs is
// omitted; aggregate sizes are eventually consistent.
//
// Example Usage:
//
//	svc, err := filesystem.New(cfg, permissions.NewEvaluator(permissions.DefaultLayout(), nil))
//	resp, err := svc.List(ctx, identity, filesystem.ListRequest{Path: "Reports"})
package filesystem
