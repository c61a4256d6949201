// Package pdfsort files loose PDFs in the archive's Documents folder into
// topical subfolders. The oracle classifies each file by name against the
// subfolders that already exist; names it invents are cleaned and created on
// demand, and unclassifiable files stay where they are.
package pdfsort
