// Package testutil builds malformed image payloads for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// PalettedBMP returns an uncompressed 8bpp BMP of width x 1 whose palette
// holds paletteSize grey entries and whose every pixel stores index.
// Choosing index >= paletteSize yields a file the decoder accepts but
// whose pixels point past the palette.
func PalettedBMP(width, paletteSize int, index byte) []byte {
	const fileHeaderLen, infoHeaderLen = 14, 40
	rowLen := (width + 3) &^ 3
	offset := fileHeaderLen + infoHeaderLen + 4*paletteSize

	var buf bytes.Buffer
	le := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("BM")
	le(uint32(offset + rowLen))
	le(uint32(0))
	le(uint32(offset))

	le(uint32(infoHeaderLen))
	le(int32(width))
	le(int32(1))
	le(uint16(1)) // planes
	le(uint16(8)) // bits per pixel
	le(uint32(0)) // no compression
	le(uint32(rowLen))
	le(int32(0))
	le(int32(0))
	le(uint32(paletteSize))
	le(uint32(0))

	for i := 0; i < paletteSize; i++ {
		v := byte(i * 255 / max(paletteSize-1, 1))
		buf.Write([]byte{v, v, v, 0})
	}

	row := make([]byte, rowLen)
	for i := 0; i < width; i++ {
		row[i] = index
	}
	buf.Write(row)
	return buf.Bytes()
}

// PNGHeader returns a PNG signature and IHDR chunk declaring a width x
// height RGBA image, with no pixel data following.
func PNGHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
