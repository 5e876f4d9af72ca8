// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models contains the persisted domain types.
package models
