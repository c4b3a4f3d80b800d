package assets

import "embed"

// Templates holds the starter files written by `tau-eval init`.
//
//go:embed templates/*
var Templates embed.FS
