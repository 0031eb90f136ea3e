// Package web embeds the server-rendered HTML pages.
package web

import "embed"

//go:embed templates/*.html
var TemplateFiles embed.FS
