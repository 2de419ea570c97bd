// Package models contains the GORM persistence models for the sync engine.
// Models are kept separate from domain entities so that storage concerns
// (column types, indexes, table names) never leak into the domain layer.
package models
