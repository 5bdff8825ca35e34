// Package geotiff reads the GeoTIFF rasters Earth Engine exports.
//
// It is deliberately not a general TIFF implementation: it decodes the
// layouts the export service actually produces (classic TIFF, chunky
// interleave, strip or tile organization, uncompressed/Deflate/LZW,
// integer and float samples up to 128 bands) plus the GeoTIFF
// georeferencing and GDAL nodata tags, and rejects everything else
// with a clear error.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/image/tiff/lzw"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/raster"
)

const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGDALNoData          = 42113
)

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946
)

const (
	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

// maxSamples caps the decoded size; exports in this pipeline are small
// clipped regions, so anything past this is a corrupt or wrong file.
const maxSamples = 1 << 30

// DecodeFile reads a GeoTIFF from disk.
func DecodeFile(path string) (*raster.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raster: %w", err)
	}
	defer f.Close()

	grid, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return grid, nil
}

// Decode reads a GeoTIFF raster into a Grid. Samples equal to the
// file's declared nodata value come out as NaN.
func Decode(r io.Reader) (*raster.Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read raster: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("not a TIFF file: %d bytes", len(data))
	}

	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a TIFF file: bad byte-order mark %q", data[:2])
	}

	switch magic := bo.Uint16(data[2:4]); magic {
	case 42:
	case 43:
		return nil, fmt.Errorf("BigTIFF is not supported; re-export a smaller region")
	default:
		return nil, fmt.Errorf("not a TIFF file: magic %d", magic)
	}

	d := &decoder{data: data, bo: bo}
	if err := d.readIFD(bo.Uint32(data[4:8])); err != nil {
		return nil, err
	}
	return d.decodeImage()
}

type ifdEntry struct {
	typ   uint16
	count uint32
	value []byte // raw value bytes, already resolved through the offset
}

type decoder struct {
	data    []byte
	bo      binary.ByteOrder
	entries map[uint16]ifdEntry
}

var typeSizes = map[uint16]uint32{
	1:  1, // BYTE
	2:  1, // ASCII
	3:  2, // SHORT
	4:  4, // LONG
	5:  8, // RATIONAL
	6:  1, // SBYTE
	7:  1, // UNDEFINED
	8:  2, // SSHORT
	9:  4, // SLONG
	10: 8, // SRATIONAL
	11: 4, // FLOAT
	12: 8, // DOUBLE
}

func (d *decoder) readIFD(offset uint32) error {
	if int(offset)+2 > len(d.data) {
		return fmt.Errorf("IFD offset %d beyond file end", offset)
	}
	n := int(d.bo.Uint16(d.data[offset : offset+2]))
	base := int(offset) + 2
	if base+n*12 > len(d.data) {
		return fmt.Errorf("truncated IFD: %d entries at offset %d", n, offset)
	}

	d.entries = make(map[uint16]ifdEntry, n)
	for i := 0; i < n; i++ {
		e := d.data[base+i*12 : base+(i+1)*12]
		tag := d.bo.Uint16(e[0:2])
		typ := d.bo.Uint16(e[2:4])
		count := d.bo.Uint32(e[4:8])

		size, ok := typeSizes[typ]
		if !ok {
			continue // unknown field type, skip per TIFF spec
		}
		total := size * count
		var value []byte
		if total <= 4 {
			value = e[8 : 8+total]
		} else {
			off := d.bo.Uint32(e[8:12])
			if int(off)+int(total) > len(d.data) {
				return fmt.Errorf("tag %d value beyond file end", tag)
			}
			value = d.data[off : off+total]
		}
		d.entries[tag] = ifdEntry{typ: typ, count: count, value: value}
	}
	return nil
}

// uintVal returns the first value of an unsigned integer tag, or def
// when the tag is absent.
func (d *decoder) uintVal(tag uint16, def uint) (uint, error) {
	vals, err := d.uintVals(tag)
	if err != nil {
		return 0, err
	}
	if vals == nil {
		return def, nil
	}
	return vals[0], nil
}

func (d *decoder) uintVals(tag uint16) ([]uint, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, nil
	}
	out := make([]uint, e.count)
	for i := uint32(0); i < e.count; i++ {
		switch e.typ {
		case 1, 6, 7:
			out[i] = uint(e.value[i])
		case 3, 8:
			out[i] = uint(d.bo.Uint16(e.value[i*2:]))
		case 4, 9:
			out[i] = uint(d.bo.Uint32(e.value[i*4:]))
		default:
			return nil, fmt.Errorf("tag %d: unexpected field type %d", tag, e.typ)
		}
	}
	return out, nil
}

func (d *decoder) floatVals(tag uint16) ([]float64, error) {
	e, ok := d.entries[tag]
	if !ok {
		return nil, nil
	}
	out := make([]float64, e.count)
	for i := uint32(0); i < e.count; i++ {
		switch e.typ {
		case 11:
			out[i] = float64(math.Float32frombits(d.bo.Uint32(e.value[i*4:])))
		case 12:
			out[i] = math.Float64frombits(d.bo.Uint64(e.value[i*8:]))
		default:
			return nil, fmt.Errorf("tag %d: unexpected field type %d", tag, e.typ)
		}
	}
	return out, nil
}

func (d *decoder) asciiVal(tag uint16) string {
	e, ok := d.entries[tag]
	if !ok || e.typ != 2 {
		return ""
	}
	return strings.TrimRight(string(e.value), "\x00")
}

type layout struct {
	width, height int
	bands         int
	bits          uint
	format        uint
	compression   uint
	predictor     uint

	tiled            bool
	chunkW, chunkH   int
	chunkOffsets     []uint
	chunkByteCounts  []uint
	chunksAcrossWide int
}

func (d *decoder) readLayout() (*layout, error) {
	w, err := d.uintVal(tagImageWidth, 0)
	if err != nil {
		return nil, err
	}
	h, err := d.uintVal(tagImageLength, 0)
	if err != nil {
		return nil, err
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("missing image dimensions")
	}

	bands, err := d.uintVal(tagSamplesPerPixel, 1)
	if err != nil {
		return nil, err
	}

	bits, err := d.uintVals(tagBitsPerSample)
	if err != nil {
		return nil, err
	}
	if bits == nil {
		bits = []uint{1}
	}
	for _, b := range bits[1:] {
		if b != bits[0] {
			return nil, fmt.Errorf("mixed bit depths %v are not supported", bits)
		}
	}
	switch bits[0] {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bits[0])
	}

	formats, err := d.uintVals(tagSampleFormat)
	if err != nil {
		return nil, err
	}
	format := uint(formatUint)
	if formats != nil {
		format = formats[0]
		for _, f := range formats[1:] {
			if f != format {
				return nil, fmt.Errorf("mixed sample formats %v are not supported", formats)
			}
		}
	}
	switch format {
	case formatUint, formatInt:
	case formatFloat:
		if bits[0] != 32 && bits[0] != 64 {
			return nil, fmt.Errorf("unsupported float bit depth %d", bits[0])
		}
	default:
		return nil, fmt.Errorf("unsupported sample format %d", format)
	}

	planar, err := d.uintVal(tagPlanarConfig, 1)
	if err != nil {
		return nil, err
	}
	if planar != 1 {
		return nil, fmt.Errorf("planar (non-interleaved) layout is not supported")
	}

	compression, err := d.uintVal(tagCompression, compressionNone)
	if err != nil {
		return nil, err
	}
	switch compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}

	predictor, err := d.uintVal(tagPredictor, 1)
	if err != nil {
		return nil, err
	}
	switch predictor {
	case 1:
	case 2:
		if format == formatFloat {
			return nil, fmt.Errorf("horizontal predictor on float samples is not supported")
		}
	default:
		return nil, fmt.Errorf("unsupported predictor %d", predictor)
	}

	l := &layout{
		width:       int(w),
		height:      int(h),
		bands:       int(bands),
		bits:        bits[0],
		format:      format,
		compression: compression,
		predictor:   predictor,
	}

	if total := int64(w) * int64(h) * int64(bands); total > maxSamples {
		return nil, fmt.Errorf("raster too large: %dx%dx%d samples", w, h, bands)
	}

	if _, tiled := d.entries[tagTileOffsets]; tiled {
		tw, err := d.uintVal(tagTileWidth, 0)
		if err != nil {
			return nil, err
		}
		th, err := d.uintVal(tagTileLength, 0)
		if err != nil {
			return nil, err
		}
		if tw == 0 || th == 0 {
			return nil, fmt.Errorf("tiled file missing tile dimensions")
		}
		l.tiled = true
		l.chunkW, l.chunkH = int(tw), int(th)
		l.chunksAcrossWide = (l.width + l.chunkW - 1) / l.chunkW
		l.chunkOffsets, err = d.uintVals(tagTileOffsets)
		if err != nil {
			return nil, err
		}
		l.chunkByteCounts, err = d.uintVals(tagTileByteCounts)
		if err != nil {
			return nil, err
		}
	} else {
		rps, err := d.uintVal(tagRowsPerStrip, h) // default: one strip
		if err != nil {
			return nil, err
		}
		if rps == 0 || rps > h {
			rps = h
		}
		l.chunkW, l.chunkH = l.width, int(rps)
		l.chunksAcrossWide = 1
		l.chunkOffsets, err = d.uintVals(tagStripOffsets)
		if err != nil {
			return nil, err
		}
		l.chunkByteCounts, err = d.uintVals(tagStripByteCounts)
		if err != nil {
			return nil, err
		}
	}

	if l.chunkOffsets == nil || l.chunkByteCounts == nil {
		return nil, fmt.Errorf("missing strip or tile offsets")
	}
	if len(l.chunkOffsets) != len(l.chunkByteCounts) {
		return nil, fmt.Errorf("offset/byte-count mismatch: %d vs %d",
			len(l.chunkOffsets), len(l.chunkByteCounts))
	}
	return l, nil
}

func (d *decoder) decodeImage() (*raster.Grid, error) {
	l, err := d.readLayout()
	if err != nil {
		return nil, err
	}

	grid := raster.NewGrid(l.width, l.height, l.bands)

	for i := range l.chunkOffsets {
		if err := d.decodeChunk(l, i, grid); err != nil {
			return nil, err
		}
	}

	if err := d.applyGeo(grid); err != nil {
		return nil, err
	}
	d.applyNoData(grid)
	return grid, nil
}

func (d *decoder) decodeChunk(l *layout, idx int, grid *raster.Grid) error {
	off, count := l.chunkOffsets[idx], l.chunkByteCounts[idx]
	if int(off)+int(count) > len(d.data) {
		return fmt.Errorf("chunk %d beyond file end", idx)
	}
	raw, err := decompress(d.data[off:off+count], l.compression)
	if err != nil {
		return fmt.Errorf("chunk %d: %w", idx, err)
	}

	// Chunk placement within the image.
	x0, y0 := 0, idx*l.chunkH
	rows, cols := l.chunkH, l.chunkW
	if l.tiled {
		x0 = (idx % l.chunksAcrossWide) * l.chunkW
		y0 = (idx / l.chunksAcrossWide) * l.chunkH
	} else if y0+rows > l.height {
		rows = l.height - y0 // last strip may be short
	}

	bytesPer := int(l.bits / 8)
	need := rows * cols * l.bands * bytesPer
	if len(raw) < need {
		return fmt.Errorf("chunk %d truncated: %d bytes, need %d", idx, len(raw), need)
	}

	vals := make([]uint64, cols*l.bands)
	mask := uint64(1)<<l.bits - 1
	if l.bits == 64 {
		mask = ^uint64(0)
	}

	for r := 0; r < rows; r++ {
		rowStart := r * cols * l.bands * bytesPer
		for i := range vals {
			vals[i] = d.readRaw(raw[rowStart+i*bytesPer:], bytesPer)
		}
		if l.predictor == 2 {
			for i := l.bands; i < len(vals); i++ {
				vals[i] = (vals[i] + vals[i-l.bands]) & mask
			}
		}

		y := y0 + r
		if y >= l.height {
			break // tile padding below the image
		}
		for c := 0; c < cols; c++ {
			x := x0 + c
			if x >= l.width {
				continue // tile padding right of the image
			}
			for b := 0; b < l.bands; b++ {
				grid.Set(b, x, y, convertSample(vals[c*l.bands+b], l.bits, l.format))
			}
		}
	}
	return nil
}

func (d *decoder) readRaw(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(d.bo.Uint16(b))
	case 4:
		return uint64(d.bo.Uint32(b))
	default:
		return d.bo.Uint64(b)
	}
}

func convertSample(v uint64, bits, format uint) float64 {
	switch format {
	case formatFloat:
		if bits == 32 {
			return float64(math.Float32frombits(uint32(v)))
		}
		return math.Float64frombits(v)
	case formatInt:
		shift := 64 - bits
		return float64(int64(v<<shift) >> shift)
	default:
		return float64(v)
	}
}

func decompress(chunk []byte, compression uint) ([]byte, error) {
	switch compression {
	case compressionNone:
		return chunk, nil
	case compressionLZW:
		rc := lzw.NewReader(bytes.NewReader(chunk), lzw.MSB, 8)
		defer rc.Close()
		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		return out, nil
	default: // deflate variants
		zr, err := zlib.NewReader(bytes.NewReader(chunk))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out, nil
	}
}

// applyGeo recovers the affine transform from the GeoTIFF tags. Files
// without georeferencing decode fine; the transform just stays zero.
func (d *decoder) applyGeo(grid *raster.Grid) error {
	if m, err := d.floatVals(tagModelTransformation); err != nil {
		return err
	} else if len(m) == 16 {
		if m[1] != 0 || m[4] != 0 {
			return fmt.Errorf("rotated rasters are not supported")
		}
		grid.Transform = raster.Transform{
			OriginX:     m[3],
			OriginY:     m[7],
			PixelWidth:  m[0],
			PixelHeight: m[5],
		}
		return nil
	}

	scale, err := d.floatVals(tagModelPixelScale)
	if err != nil {
		return err
	}
	tie, err := d.floatVals(tagModelTiepoint)
	if err != nil {
		return err
	}
	if len(scale) < 2 || len(tie) < 6 {
		return nil
	}

	// Tiepoint maps raster (i,j) to model (x,y); pixel scale Y is
	// positive in the tag but rows run southward.
	grid.Transform = raster.Transform{
		OriginX:     tie[3] - tie[0]*scale[0],
		OriginY:     tie[4] + tie[1]*scale[1],
		PixelWidth:  scale[0],
		PixelHeight: -scale[1],
	}
	return nil
}

func (d *decoder) applyNoData(grid *raster.Grid) {
	s := strings.TrimSpace(d.asciiVal(tagGDALNoData))
	if s == "" {
		return
	}
	nd, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	grid.NoData = &nd
	if math.IsNaN(nd) {
		return
	}
	for i, v := range grid.Samples {
		if v == nd {
			grid.Samples[i] = math.NaN()
		}
	}
}
