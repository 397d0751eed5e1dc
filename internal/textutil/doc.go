// Package textutil provides the text helpers shared by option names and sound
// naming: Unicode normalization, accent folding, and slug generation.
package textutil
