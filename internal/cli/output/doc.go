// Package output renders command results as a table, JSON or YAML.
//
// Tables are built by reflection from structs, slices of structs and maps.
// Struct fields are labelled from their `table` tag, falling back to the
// json tag and then the field name; `table:"-"` hides a field.
package output
