package stageiv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Minimal GeoTIFF reader for the Stage IV daily precipitation product:
// single-band float32 rasters, strip or tile organized, uncompressed or
// Deflate compressed, georeferenced via ModelTiepoint + ModelPixelScale.
// Anything outside that envelope is rejected with a descriptive error
// rather than guessed at.

// TIFF tag IDs.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
)

// TIFF compression schemes.
const (
	compressionNone       = 1
	compressionDeflate    = 8
	compressionOldDeflate = 32946
)

// sampleFormatFloat is the SampleFormat value for IEEE floating point.
const sampleFormatFloat = 3

// tiff field types.
const (
	typeByte     = 1
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeFloat    = 11
	typeDouble   = 12
)

var typeSizes = map[uint16]int{
	typeByte:     1,
	typeShort:    2,
	typeLong:     4,
	typeRational: 8,
	typeFloat:    4,
	typeDouble:   8,
}

// Raster is a decoded single-band float32 GeoTIFF held fully in memory.
// The daily Stage IV CONUS grid is roughly one million pixels, so decoding
// the whole band up front is cheap and keeps neighborhood sampling trivial.
type Raster struct {
	Width  int
	Height int

	// bounding box in the raster's projected coordinate system
	MinX, MinY, MaxX, MaxY float64

	data []float32 // row-major, row 0 = top (MaxY edge)
}

// Sample returns the pixel value at (col, row). The second return is false
// when the coordinates fall outside the raster.
func (r *Raster) Sample(col, row int) (float64, bool) {
	if col < 0 || col >= r.Width || row < 0 || row >= r.Height {
		return 0, false
	}
	return float64(r.data[row*r.Width+col]), true
}

// entry is a parsed IFD entry.
type entry struct {
	typ      uint16
	count    uint32
	valueRaw [4]byte
}

type tiffDecoder struct {
	data  []byte
	order binary.ByteOrder
	tags  map[uint16]entry
}

// DecodeRaster parses a GeoTIFF byte slice into a Raster.
func DecodeRaster(data []byte) (*Raster, error) {
	d, err := newTiffDecoder(data)
	if err != nil {
		return nil, err
	}

	width, err := d.uintTag(tagImageWidth)
	if err != nil {
		return nil, err
	}
	height, err := d.uintTag(tagImageLength)
	if err != nil {
		return nil, err
	}
	if width == 0 || height == 0 || width*height > 1<<28 {
		return nil, fmt.Errorf("geotiff: unreasonable dimensions %dx%d", width, height)
	}

	if err := d.checkPixelFormat(); err != nil {
		return nil, err
	}

	compression := uint64(compressionNone)
	if _, ok := d.tags[tagCompression]; ok {
		if compression, err = d.uintTag(tagCompression); err != nil {
			return nil, err
		}
	}
	switch compression {
	case compressionNone, compressionDeflate, compressionOldDeflate:
	default:
		return nil, fmt.Errorf("geotiff: unsupported compression scheme %d", compression)
	}

	r := &Raster{
		Width:  int(width),
		Height: int(height),
		data:   make([]float32, width*height),
	}

	if _, tiled := d.tags[tagTileOffsets]; tiled {
		err = d.decodeTiles(r, compression)
	} else {
		err = d.decodeStrips(r, compression)
	}
	if err != nil {
		return nil, err
	}

	if err := d.readGeoreference(r); err != nil {
		return nil, err
	}

	return r, nil
}

func newTiffDecoder(data []byte) (*tiffDecoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("geotiff: truncated header (%d bytes)", len(data))
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("geotiff: bad byte-order mark %q", data[:2])
	}

	if order.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("geotiff: bad magic number")
	}

	ifdOffset := order.Uint32(data[4:8])
	if int(ifdOffset)+2 > len(data) {
		return nil, fmt.Errorf("geotiff: IFD offset %d out of range", ifdOffset)
	}

	count := int(order.Uint16(data[ifdOffset : ifdOffset+2]))
	tags := make(map[uint16]entry, count)
	pos := int(ifdOffset) + 2
	for i := 0; i < count; i++ {
		if pos+12 > len(data) {
			return nil, fmt.Errorf("geotiff: truncated IFD entry %d", i)
		}
		tag := order.Uint16(data[pos : pos+2])
		e := entry{
			typ:   order.Uint16(data[pos+2 : pos+4]),
			count: order.Uint32(data[pos+4 : pos+8]),
		}
		copy(e.valueRaw[:], data[pos+8:pos+12])
		tags[tag] = e
		pos += 12
	}

	return &tiffDecoder{data: data, order: order, tags: tags}, nil
}

// fieldBytes returns the raw value bytes for an entry, following the offset
// indirection when the value does not fit inline.
func (d *tiffDecoder) fieldBytes(e entry) ([]byte, error) {
	size, ok := typeSizes[e.typ]
	if !ok {
		return nil, fmt.Errorf("geotiff: unsupported field type %d", e.typ)
	}
	total := size * int(e.count)
	if total <= 4 {
		return e.valueRaw[:total], nil
	}
	offset := int(d.order.Uint32(e.valueRaw[:]))
	if offset+total > len(d.data) {
		return nil, fmt.Errorf("geotiff: field data at %d+%d out of range", offset, total)
	}
	return d.data[offset : offset+total], nil
}

// uintValues decodes an integral entry into a uint64 slice.
func (d *tiffDecoder) uintValues(e entry) ([]uint64, error) {
	raw, err := d.fieldBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.count)
	for i := range out {
		switch e.typ {
		case typeByte:
			out[i] = uint64(raw[i])
		case typeShort:
			out[i] = uint64(d.order.Uint16(raw[i*2:]))
		case typeLong:
			out[i] = uint64(d.order.Uint32(raw[i*4:]))
		default:
			return nil, fmt.Errorf("geotiff: field type %d is not integral", e.typ)
		}
	}
	return out, nil
}

// doubleValues decodes a DOUBLE entry into a float64 slice.
func (d *tiffDecoder) doubleValues(e entry) ([]float64, error) {
	if e.typ != typeDouble {
		return nil, fmt.Errorf("geotiff: expected DOUBLE field, got type %d", e.typ)
	}
	raw, err := d.fieldBytes(e)
	if err != nil {
		return nil, err
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(d.order.Uint64(raw[i*8:]))
	}
	return out, nil
}

// uintTag returns the single integral value of a tag.
func (d *tiffDecoder) uintTag(tag uint16) (uint64, error) {
	e, ok := d.tags[tag]
	if !ok {
		return 0, fmt.Errorf("geotiff: missing required tag %d", tag)
	}
	vals, err := d.uintValues(e)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("geotiff: tag %d has no values", tag)
	}
	return vals[0], nil
}

// checkPixelFormat rejects anything that is not single-band float32 with no
// predictor, the only layout the Stage IV product uses.
func (d *tiffDecoder) checkPixelFormat() error {
	if bits, err := d.uintTag(tagBitsPerSample); err != nil {
		return err
	} else if bits != 32 {
		return fmt.Errorf("geotiff: expected 32 bits per sample, got %d", bits)
	}

	if _, ok := d.tags[tagSamplesPerPixel]; ok {
		if spp, err := d.uintTag(tagSamplesPerPixel); err != nil {
			return err
		} else if spp != 1 {
			return fmt.Errorf("geotiff: expected single band, got %d samples per pixel", spp)
		}
	}

	if fmtTag, err := d.uintTag(tagSampleFormat); err != nil {
		return err
	} else if fmtTag != sampleFormatFloat {
		return fmt.Errorf("geotiff: expected float sample format, got %d", fmtTag)
	}

	if _, ok := d.tags[tagPredictor]; ok {
		if pred, err := d.uintTag(tagPredictor); err != nil {
			return err
		} else if pred != 1 {
			return fmt.Errorf("geotiff: unsupported predictor %d", pred)
		}
	}

	return nil
}

// decodeStrips fills r.data from a strip-organized image.
func (d *tiffDecoder) decodeStrips(r *Raster, compression uint64) error {
	offsets, err := d.uintValues(d.tags[tagStripOffsets])
	if err != nil {
		return fmt.Errorf("geotiff: strip offsets: %w", err)
	}
	countsEntry, ok := d.tags[tagStripByteCounts]
	if !ok {
		return fmt.Errorf("geotiff: missing strip byte counts")
	}
	counts, err := d.uintValues(countsEntry)
	if err != nil {
		return fmt.Errorf("geotiff: strip byte counts: %w", err)
	}
	if len(counts) != len(offsets) {
		return fmt.Errorf("geotiff: %d strip offsets but %d byte counts", len(offsets), len(counts))
	}

	rowsPerStrip := uint64(r.Height)
	if _, ok := d.tags[tagRowsPerStrip]; ok {
		if rowsPerStrip, err = d.uintTag(tagRowsPerStrip); err != nil {
			return err
		}
	}
	if rowsPerStrip == 0 {
		return fmt.Errorf("geotiff: zero rows per strip")
	}

	for i := range offsets {
		rowStart := i * int(rowsPerStrip)
		rows := int(rowsPerStrip)
		if rowStart+rows > r.Height {
			rows = r.Height - rowStart
		}
		if rows <= 0 {
			break
		}

		raw, err := d.segmentBytes(offsets[i], counts[i], compression)
		if err != nil {
			return fmt.Errorf("geotiff: strip %d: %w", i, err)
		}
		want := rows * r.Width * 4
		if len(raw) < want {
			return fmt.Errorf("geotiff: strip %d has %d bytes, want %d", i, len(raw), want)
		}

		dst := r.data[rowStart*r.Width : (rowStart+rows)*r.Width]
		for j := range dst {
			dst[j] = math.Float32frombits(d.order.Uint32(raw[j*4:]))
		}
	}

	return nil
}

// decodeTiles fills r.data from a tile-organized image, clipping the
// right and bottom edge tiles.
func (d *tiffDecoder) decodeTiles(r *Raster, compression uint64) error {
	tileW, err := d.uintTag(tagTileWidth)
	if err != nil {
		return err
	}
	tileH, err := d.uintTag(tagTileLength)
	if err != nil {
		return err
	}
	if tileW == 0 || tileH == 0 {
		return fmt.Errorf("geotiff: zero tile dimensions")
	}

	offsets, err := d.uintValues(d.tags[tagTileOffsets])
	if err != nil {
		return fmt.Errorf("geotiff: tile offsets: %w", err)
	}
	countsEntry, ok := d.tags[tagTileByteCounts]
	if !ok {
		return fmt.Errorf("geotiff: missing tile byte counts")
	}
	counts, err := d.uintValues(countsEntry)
	if err != nil {
		return fmt.Errorf("geotiff: tile byte counts: %w", err)
	}
	if len(counts) != len(offsets) {
		return fmt.Errorf("geotiff: %d tile offsets but %d byte counts", len(offsets), len(counts))
	}

	across := (r.Width + int(tileW) - 1) / int(tileW)
	down := (r.Height + int(tileH) - 1) / int(tileH)
	if across*down != len(offsets) {
		return fmt.Errorf("geotiff: expected %d tiles, got %d", across*down, len(offsets))
	}

	for ti := range offsets {
		raw, err := d.segmentBytes(offsets[ti], counts[ti], compression)
		if err != nil {
			return fmt.Errorf("geotiff: tile %d: %w", ti, err)
		}
		want := int(tileW) * int(tileH) * 4
		if len(raw) < want {
			return fmt.Errorf("geotiff: tile %d has %d bytes, want %d", ti, len(raw), want)
		}

		tileCol := ti % across
		tileRow := ti / across
		originCol := tileCol * int(tileW)
		originRow := tileRow * int(tileH)

		for y := 0; y < int(tileH); y++ {
			row := originRow + y
			if row >= r.Height {
				break
			}
			for x := 0; x < int(tileW); x++ {
				col := originCol + x
				if col >= r.Width {
					break
				}
				bits := d.order.Uint32(raw[(y*int(tileW)+x)*4:])
				r.data[row*r.Width+col] = math.Float32frombits(bits)
			}
		}
	}

	return nil
}

// segmentBytes returns a strip or tile's decompressed payload.
func (d *tiffDecoder) segmentBytes(offset, count, compression uint64) ([]byte, error) {
	if offset+count > uint64(len(d.data)) {
		return nil, fmt.Errorf("segment at %d+%d out of range", offset, count)
	}
	raw := d.data[offset : offset+count]

	if compression == compressionNone {
		return raw, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("opening deflate stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflating segment: %w", err)
	}
	return out, nil
}

// readGeoreference derives the projected bounding box from the
// ModelTiepoint and ModelPixelScale tags.
func (d *tiffDecoder) readGeoreference(r *Raster) error {
	tpEntry, ok := d.tags[tagModelTiepoint]
	if !ok {
		return fmt.Errorf("geotiff: missing ModelTiepoint tag")
	}
	scaleEntry, ok := d.tags[tagModelPixelScale]
	if !ok {
		return fmt.Errorf("geotiff: missing ModelPixelScale tag")
	}

	tp, err := d.doubleValues(tpEntry)
	if err != nil {
		return err
	}
	scale, err := d.doubleValues(scaleEntry)
	if err != nil {
		return err
	}
	if len(tp) < 6 || len(scale) < 2 {
		return fmt.Errorf("geotiff: short georeference tags (tiepoint %d, scale %d)", len(tp), len(scale))
	}
	sx, sy := scale[0], scale[1]
	if sx <= 0 || sy <= 0 {
		return fmt.Errorf("geotiff: non-positive pixel scale (%g, %g)", sx, sy)
	}

	// Tiepoint maps raster position (I, J) to projected (X, Y).
	rasterI, rasterJ := tp[0], tp[1]
	projX, projY := tp[3], tp[4]

	r.MinX = projX - rasterI*sx
	r.MaxY = projY + rasterJ*sy
	r.MaxX = r.MinX + float64(r.Width)*sx
	r.MinY = r.MaxY - float64(r.Height)*sy
	return nil
}
