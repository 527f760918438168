// Package textutil provides small text helpers shared by the label projector
// and the CLI renderers: flattening field values onto a single line and
// truncating display strings by rune count.
package textutil
