// Package textutil provides the text sanitizers used when oracle output
// becomes part of a filesystem path.
//
// CleanName produces folder names (category names, project folders, PDF
// subfolders); CleanTitle produces filename stems for renamed images. Both
// strip everything outside word characters, whitespace, and hyphens before
// folding separators into underscores.
package textutil
