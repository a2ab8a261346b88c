//go:build ignore

// This program generates a test sprite container for unit tests.
// Run with: go run generate_spr.go
package main

import (
	"bytes"
	"encoding/binary"
	"os"
)

// block encodes one sprite: color key, byte budget, then runs.
func block(runs [][2]uint16, color [3]byte) []byte {
	var body bytes.Buffer
	for _, run := range runs {
		binary.Write(&body, binary.LittleEndian, run[0]) // transparent
		binary.Write(&body, binary.LittleEndian, run[1]) // opaque
		for i := uint16(0); i < run[1]; i++ {
			body.Write(color[:])
		}
	}

	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0x00, 0xFF})
	binary.Write(&buf, binary.LittleEndian, uint16(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func main() {
	// Sprite 1: solid red
	solid := block([][2]uint16{{0, 1024}}, [3]byte{255, 0, 0})

	// Sprite 3: white diagonal, one opaque pixel per row
	var diagonal [][2]uint16
	diagonal = append(diagonal, [2]uint16{0, 1})
	for i := 1; i < 32; i++ {
		diagonal = append(diagonal, [2]uint16{32, 1})
	}
	line := block(diagonal, [3]byte{255, 255, 255})

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0x57BBD603)) // signature
	binary.Write(&buf, binary.LittleEndian, uint32(3))          // sprite count

	base := uint32(8 + 3*4)
	binary.Write(&buf, binary.LittleEndian, base)
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // sprite 2 is empty
	binary.Write(&buf, binary.LittleEndian, base+uint32(len(solid)))

	buf.Write(solid)
	buf.Write(line)

	if err := os.WriteFile("test.spr", buf.Bytes(), 0644); err != nil {
		panic(err)
	}
	println("Generated test.spr")
}
