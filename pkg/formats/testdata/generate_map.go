//go:build ignore

// This program generates a small test map for unit tests.
// Run with: go run generate_map.go
package main

import (
	"bytes"
	"encoding/binary"
	"os"
)

const (
	nodeEscape = 0xFD
	nodeStart  = 0xFE
	nodeEnd    = 0xFF
)

type writer struct {
	bytes.Buffer
}

func (w *writer) start(kind byte) {
	w.WriteByte(nodeStart)
	w.WriteByte(kind)
}

func (w *writer) end() {
	w.WriteByte(nodeEnd)
}

// data writes little-endian values, escaping control bytes.
func (w *writer) data(values ...any) {
	var raw bytes.Buffer
	for _, v := range values {
		if s, ok := v.(string); ok {
			binary.Write(&raw, binary.LittleEndian, uint16(len(s)))
			raw.WriteString(s)
			continue
		}
		binary.Write(&raw, binary.LittleEndian, v)
	}
	for _, b := range raw.Bytes() {
		if b == nodeEscape || b == nodeStart || b == nodeEnd {
			w.WriteByte(nodeEscape)
		}
		w.WriteByte(b)
	}
}

func main() {
	var w writer
	w.Write([]byte{0, 0, 0, 0}) // identifier

	w.start(0) // root
	w.data(uint32(2), uint16(64), uint16(64), uint32(3), uint32(57))

	w.start(2) // map data
	w.data(uint8(1), "generated test map", uint8(13), "test-spawn.xml", uint8(11), "test-house.xml")

	// 2x2 grass patch at (32000,32000,7), one tile with a torch
	w.start(4)
	w.data(uint16(32000), uint16(32000), uint8(7))
	for dx := uint8(0); dx < 2; dx++ {
		for dy := uint8(0); dy < 2; dy++ {
			w.start(5)
			w.data(dx, dy, uint8(9), uint16(4526))
			if dx == 1 && dy == 1 {
				w.start(6)
				w.data(uint16(2050), uint8(4), uint16(1000))
				w.end()
			}
			w.end()
		}
	}
	w.end()

	w.start(12) // towns
	w.start(13)
	w.data(uint32(1), "Testville", uint16(32001), uint16(32001), uint8(7))
	w.end()
	w.end()

	w.end() // map data
	w.end() // root

	if err := os.WriteFile("test.otbm", w.Bytes(), 0644); err != nil {
		panic(err)
	}
	println("Generated test.otbm")
}
