// Package sqlstore implements the output backend on a relational database.
//
// The container is a database with four tables:
//
//	nodes       name, parent, kind
//	datasets    name, element type, record dims, chunk, records
//	records     dataset, idx, data (one row per record)
//	attributes  node, name, element type, dims, value
//
// Records and attribute values are stored as little-endian binary blobs
// (strings as JSON), so NaN bins survive the round trip. SQLite and DuckDB
// share this package; they differ only in how the database is opened and
// how the schema is created.
package sqlstore
