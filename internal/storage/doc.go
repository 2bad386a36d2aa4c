// Package storage is the durable side of the task table: one SQLite file,
// one tasks table, schema validated on startup. It implements task.Store.
package storage
