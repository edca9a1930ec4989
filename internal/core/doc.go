// Package core provides the workbook cache and the operations behind the API.
//
// The package holds the domain logic independent of any transport. It is
// used by the HTTP handlers, the sheetctl CLI and tests without
// modification.
//
// # Architecture
//
// The package is organized around a few components:
//
//   - [SheetBuilder] reads one sheet of a workbook, classifies its columns
//     and overwrites the sheet's cache.
//   - [Synchronizer] walks the workbook folder, rebuilds the caches of new
//     or modified workbooks and soft-deletes entries whose file is gone. It
//     can run on a schedule with [Synchronizer.StartSyncScheduler].
//   - [Reconciler] routes row mutations to a [PhysicalBackend] when the
//     workbook file exists and to a [CacheBackend] otherwise.
//   - [Service] is the entry point for file, sheet, row and archive
//     operations; [UserService] handles logins and accounts.
//   - [LoadDump] bulk-loads users, entries and sheet caches from a JSON
//     dump.
//
// # Row identifiers
//
// Every cached row carries a _row_id key. For rows read from a workbook it
// is the physical row number, 2 being the first row under the headers. Rows
// added while the workbook is absent get len(data)+2.
//
// # Error Handling
//
// Operations return wrapped sentinels ([ErrFileNotFound], [ErrInvalidInput],
// ...). Technical errors are mapped to user-facing messages with [MapError].
// Each category has a code for support reference:
//
//   - FILE001-FILE005: File errors (missing, duplicate, size)
//   - SHEET001-SHEET002, ROW001-ROW002: Sheet and row errors
//   - USR001-USR002, AUTH001-AUTH003: Account and authentication errors
//   - ARC001: Archived copy missing
//   - DB001-DB004: Database errors
//   - UPL001-UPL003: Import errors (busy, cancelled, timeout)
//
// # Audit Logging
//
// File, sheet, row and account changes are recorded in the audit log with
// a severity:
//
//   - Low: Cache refreshes
//   - Medium: Creations, imports, edits, restores
//   - High: File, row and user deletions
//   - Critical: Permanent deletion of an archived workbook
package core
