// Package web bundles the HTML templates and browser assets into the binary.
package web

import "embed"

// Templates embeds the layouts, partials and pages parsed by view.Engine.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds the stylesheet and the page script served under /static/.
//
//go:embed static/**/*
var Static embed.FS
