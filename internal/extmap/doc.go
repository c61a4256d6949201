// Package extmap maintains the category map driving rule-based sorting: an
// ordered set of folder names, each claiming the file extensions it collects,
// plus a reserved Exclusions group naming files the organizer must leave
// alone.
//
// The map persists as an indented JSON object inside the archive directory so
// users can edit it by hand. Declaration order is preserved across load and
// rewrite because lookup walks categories in that order and the first claim
// wins. Oracle-learned bindings append through Record, which sanitizes the
// category name and rewrites the file atomically.
package extmap
