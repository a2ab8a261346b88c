// Package formats provides parsers for OpenTibia client and map file formats.
package formats

// Note: Tibia.dat things are implemented in dat.go
// Note: Tibia.spr sprites are implemented in spr.go
// Note: item types (.otb) are implemented in otb.go
// Note: maps (.otbm) are implemented in otbm.go
