// Package pagestore implements an embedded record store that keeps each
// table in a file of fixed-size pages plus an index mapping record ids to
// pages.
//
// A table named "users" lives in two files under the engine directory:
//
//	users.dat   pages of page.Size bytes, see package page
//	users.idx   JSON object mapping ids to page numbers, e.g. {"1":0}
//
// With the Pebble index backend the index lives in users.pebble instead.
//
// The engine provides the following guarantees:
//   - A record is either fully stored on a single page or not stored at all
//   - Deleting or updating a record never affects other records on its page
//   - Every page carries a checksum; a mismatch is reported as ErrCorruption
//   - The page file is synced before the index is saved to point at a new
//     frame, so a crash never leaves the index referring to a lost write
//   - An interrupted operation leaves at most an unreferenced frame, which is
//     removed the next time the table is opened. A frame is only removed when
//     its id is not indexed or its indexed page holds a live copy
//
// Basic usage:
//
//	e, err := pagestore.Open("data", pagestore.WithCompression(recordio.CompressionSnappy))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	err = e.Insert(ctx, "users", record.Record{"id": "1", "name": "a"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r, ok, err := e.Find(ctx, "users", "1")
//
// Operations on one table are serialized; different tables proceed
// independently.
package pagestore
