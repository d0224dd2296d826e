package decoder

import (
	"fmt"
	"math"
	"strings"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/schema"
	"github.com/pingcap/errors"
	"github.com/tsywkGo/go-mysql-binlog/streamer/event"
)

const (
	_zeroDatetime = "0000-00-00 00:00:00"
	_zeroDate     = "0000-00-00"
	_zeroTime     = "00:00:00"

	_datetimeIntOffset int64 = 0x8000000000
	_timeIntOffset     int64 = 0x800000
	_timeOffset        int64 = 0x800000000000
)

var _compressedBytes = []int{0, 1, 1, 2, 2, 3, 3, 4, 4, 4}

// DecodeRows decodes the row images of rows against the table map tm that
// declared its table id, and stores them in rows.Values. Column signedness
// and enum or set labels come from rows.Table when it is resolved.
//
// Integers come back as int64 or uint64, floats as float32 or float64,
// decimals and temporal types as strings in MySQL text format, strings as
// string, blobs, json and geometry as raw []byte.
func DecodeRows(tm *event.TableMapEvent, rows *event.RowsEvent) error {
	if tm.TableID != rows.TableID {
		return errors.Errorf("table map of table id %d used for rows of table id %d", tm.TableID, rows.TableID)
	}
	if rows.ColumnCount > tm.ColumnCount {
		return errors.Annotatef(ErrMalformedFrame, "rows event has %d columns, table map %d", rows.ColumnCount, tm.ColumnCount)
	}
	metas, err := columnMetas(tm.ColumnTypes, tm.ColumnMeta)
	if err != nil {
		return err
	}

	c := &rowCodec{types: tm.ColumnTypes, metas: metas}
	if rows.Table != nil && rows.Table.Info != nil {
		c.info = rows.Table.Info
	}

	images := [][]byte{rows.ColumnsPresent}
	if rows.ColumnsPresentAfter != nil {
		images = append(images, rows.ColumnsPresentAfter)
	}

	r := newReader(rows.Rows)
	var values [][]interface{}
	for r.more() {
		for _, present := range images {
			row, err := c.decodeImage(r, rows.ColumnCount, present)
			if err != nil {
				return errors.Annotatef(err, "row %d of %s", len(values), tm.TableName)
			}
			values = append(values, row)
		}
	}
	if r.err != nil {
		return r.err
	}
	rows.Values = values
	return nil
}

// columnMetas splits the table map metadata block per column.
func columnMetas(types, data []byte) ([]uint16, error) {
	r := newReader(data)
	metas := make([]uint16, len(types))
	for i, typ := range types {
		switch typ {
		case gomysql.MYSQL_TYPE_STRING, gomysql.MYSQL_TYPE_NEWDECIMAL:
			// big endian: real type or precision first
			b := r.bytes(2)
			if b != nil {
				metas[i] = uint16(b[0])<<8 | uint16(b[1])
			}
		case gomysql.MYSQL_TYPE_VAR_STRING, gomysql.MYSQL_TYPE_VARCHAR, gomysql.MYSQL_TYPE_BIT:
			metas[i] = r.int2()
		case gomysql.MYSQL_TYPE_BLOB, gomysql.MYSQL_TYPE_GEOMETRY, gomysql.MYSQL_TYPE_JSON,
			gomysql.MYSQL_TYPE_DOUBLE, gomysql.MYSQL_TYPE_FLOAT,
			gomysql.MYSQL_TYPE_TIMESTAMP2, gomysql.MYSQL_TYPE_DATETIME2, gomysql.MYSQL_TYPE_TIME2:
			metas[i] = uint16(r.int1())
		}
	}
	if r.err != nil {
		return nil, errors.Annotate(r.err, "table map column metadata")
	}
	return metas, nil
}

type rowCodec struct {
	types []byte
	metas []uint16
	info  *schema.Table
}

// decodeImage reads one row image. Columns missing from present stay nil.
func (c *rowCodec) decodeImage(r *reader, count uint64, present []byte) ([]interface{}, error) {
	presentCount := 0
	for i := 0; i < int(count); i++ {
		if isBitSet(present, i) {
			presentCount++
		}
	}
	nulls := r.bytes(bitmapSize(uint64(presentCount)))
	if r.err != nil {
		return nil, r.err
	}

	row := make([]interface{}, count)
	nullIndex := 0
	for i := 0; i < int(count); i++ {
		if !isBitSet(present, i) {
			continue
		}
		isNull := isBitSet(nulls, nullIndex)
		nullIndex++
		if isNull {
			continue
		}
		v, err := c.decodeValue(r, i)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, r.err
}

func (c *rowCodec) column(i int) *schema.TableColumn {
	if c.info == nil || i >= len(c.info.Columns) {
		return nil
	}
	return &c.info.Columns[i]
}

func (c *rowCodec) unsigned(i int) bool {
	col := c.column(i)
	return col != nil && col.IsUnsigned
}

func (c *rowCodec) decodeValue(r *reader, i int) (interface{}, error) {
	typ, meta := c.types[i], c.metas[i]
	length := int(meta)
	if typ == gomysql.MYSQL_TYPE_STRING && meta >= 256 {
		b0, b1 := byte(meta>>8), int(meta&0xff)
		if b0&0x30 != 0x30 {
			// long CHAR: two length bits live in the type byte
			length = b1 | int((b0&0x30)^0x30)<<4
			typ = b0 | 0x30
		} else {
			typ, length = b0, b1
		}
	}

	switch typ {
	case gomysql.MYSQL_TYPE_NULL:
		return nil, nil
	case gomysql.MYSQL_TYPE_TINY:
		return c.integer(i, r.fixed(1), 1), r.err
	case gomysql.MYSQL_TYPE_SHORT:
		return c.integer(i, r.fixed(2), 2), r.err
	case gomysql.MYSQL_TYPE_INT24:
		return c.integer(i, r.fixed(3), 3), r.err
	case gomysql.MYSQL_TYPE_LONG:
		return c.integer(i, r.fixed(4), 4), r.err
	case gomysql.MYSQL_TYPE_LONGLONG:
		return c.integer(i, r.fixed(8), 8), r.err
	case gomysql.MYSQL_TYPE_FLOAT:
		return math.Float32frombits(r.int4()), r.err
	case gomysql.MYSQL_TYPE_DOUBLE:
		return math.Float64frombits(r.int8()), r.err
	case gomysql.MYSQL_TYPE_NEWDECIMAL:
		return decodeDecimal(r, int(meta>>8), int(meta&0xff))
	case gomysql.MYSQL_TYPE_BIT:
		nbits := int(meta>>8)*8 + int(meta&0xff)
		return int64(gomysql.BFixedLengthInt(r.bytes((nbits + 7) / 8))), r.err
	case gomysql.MYSQL_TYPE_YEAR:
		if y := r.int1(); y != 0 {
			return int64(y) + 1900, r.err
		}
		return int64(0), r.err
	case gomysql.MYSQL_TYPE_DATE:
		v := r.fixed(3)
		if v == 0 {
			return _zeroDate, r.err
		}
		return fmt.Sprintf("%04d-%02d-%02d", v>>9, (v>>5)%16, v%32), r.err
	case gomysql.MYSQL_TYPE_TIME:
		return decodeTime(int64(r.fixed(3))), r.err
	case gomysql.MYSQL_TYPE_TIME2:
		return decodeTime2(r, int(meta))
	case gomysql.MYSQL_TYPE_TIMESTAMP:
		v := r.int4()
		if v == 0 {
			return _zeroDatetime, r.err
		}
		return unixTime(int64(v)), r.err
	case gomysql.MYSQL_TYPE_TIMESTAMP2:
		return decodeTimestamp2(r, int(meta))
	case gomysql.MYSQL_TYPE_DATETIME:
		return decodeDatetime(r.int8()), r.err
	case gomysql.MYSQL_TYPE_DATETIME2:
		return decodeDatetime2(r, int(meta))
	case gomysql.MYSQL_TYPE_ENUM:
		return c.enum(i, r.fixed(length&0xff)), r.err
	case gomysql.MYSQL_TYPE_SET:
		return c.set(i, r.fixed(length&0xff)), r.err
	case gomysql.MYSQL_TYPE_VARCHAR, gomysql.MYSQL_TYPE_VAR_STRING, gomysql.MYSQL_TYPE_STRING:
		var n int
		if length < 256 {
			n = int(r.int1())
		} else {
			n = int(r.int2())
		}
		return string(r.bytes(n)), r.err
	case gomysql.MYSQL_TYPE_BLOB, gomysql.MYSQL_TYPE_TINY_BLOB, gomysql.MYSQL_TYPE_MEDIUM_BLOB,
		gomysql.MYSQL_TYPE_LONG_BLOB, gomysql.MYSQL_TYPE_GEOMETRY, gomysql.MYSQL_TYPE_JSON:
		n := int(r.fixed(length))
		return r.bytes(n), r.err
	}
	return nil, errors.Errorf("unsupported column type 0x%02x of column %d", typ, i)
}

// integer sign extends v of size bytes unless column i is unsigned.
func (c *rowCodec) integer(i int, v uint64, size int) interface{} {
	if c.unsigned(i) {
		return v
	}
	shift := uint(64 - size*8)
	return int64(v<<shift) >> shift
}

func (c *rowCodec) enum(i int, v uint64) interface{} {
	if col := c.column(i); col != nil && v > 0 && int(v) <= len(col.EnumValues) {
		return col.EnumValues[v-1]
	}
	return int64(v)
}

func (c *rowCodec) set(i int, v uint64) interface{} {
	col := c.column(i)
	if col == nil || len(col.SetValues) == 0 {
		return int64(v)
	}
	var labels []string
	for bit, label := range col.SetValues {
		if v&(1<<uint(bit)) != 0 {
			labels = append(labels, label)
		}
	}
	return strings.Join(labels, ",")
}

func decodeDecimal(r *reader, precision, scale int) (interface{}, error) {
	integral := precision - scale
	uncompIntegral, uncompFractional := integral/9, scale/9
	compIntegral, compFractional := integral-uncompIntegral*9, scale-uncompFractional*9
	size := uncompIntegral*4 + _compressedBytes[compIntegral] + uncompFractional*4 + _compressedBytes[compFractional]

	raw := r.bytes(size)
	if r.err != nil {
		return nil, r.err
	}
	buf := append([]byte(nil), raw...)
	// the sign bit is stored inverted, negatives are stored complemented
	var mask byte
	if buf[0]&0x80 == 0 {
		mask = 0xff
	}
	buf[0] ^= 0x80

	pos := 0
	next := func(n int) uint64 {
		b := buf[pos : pos+n]
		for j := range b {
			b[j] ^= mask
		}
		pos += n
		return gomysql.BFixedLengthInt(b)
	}

	var intPart strings.Builder
	intPart.WriteString(fmt.Sprintf("%d", next(_compressedBytes[compIntegral])))
	for j := 0; j < uncompIntegral; j++ {
		intPart.WriteString(fmt.Sprintf("%09d", next(4)))
	}
	res := strings.TrimLeft(intPart.String(), "0")
	if res == "" {
		res = "0"
	}
	if scale > 0 {
		var frac strings.Builder
		for j := 0; j < uncompFractional; j++ {
			frac.WriteString(fmt.Sprintf("%09d", next(4)))
		}
		if compFractional > 0 {
			frac.WriteString(fmt.Sprintf("%0*d", compFractional, next(_compressedBytes[compFractional])))
		}
		res += "." + frac.String()
	}
	if mask != 0 {
		res = "-" + res
	}
	return res, nil
}

// fraction reads the fractional seconds of a temporal2 value and renders
// them with dec digits.
func fraction(r *reader, dec int) string {
	var usec uint64
	switch dec {
	case 1, 2:
		usec = r.fixedBE(1) * 10000
	case 3, 4:
		usec = r.fixedBE(2) * 100
	case 5, 6:
		usec = r.fixedBE(3)
	default:
		return ""
	}
	return "." + fmt.Sprintf("%06d", usec)[:dec]
}

func decodeTimestamp2(r *reader, dec int) (interface{}, error) {
	sec := int64(r.fixedBE(4))
	frac := fraction(r, dec)
	if r.err != nil {
		return nil, r.err
	}
	if sec == 0 {
		return _zeroDatetime, nil
	}
	return unixTime(sec) + frac, nil
}

func unixTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04:05")
}

func decodeDatetime(v uint64) string {
	if v == 0 {
		return _zeroDatetime
	}
	d, t := v/1000000, v%1000000
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		d/10000, (d%10000)/100, d%100, t/10000, (t%10000)/100, t%100)
}

func decodeDatetime2(r *reader, dec int) (interface{}, error) {
	v := int64(r.fixedBE(5)) - _datetimeIntOffset
	frac := fraction(r, dec)
	if r.err != nil {
		return nil, r.err
	}
	if v == 0 {
		return _zeroDatetime, nil
	}
	if v < 0 {
		v = -v
	}
	ymd, hms := v>>17, v%(1<<17)
	ym := ymd >> 5
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d%s",
		ym/13, ym%13, ymd%(1<<5), hms>>12, (hms>>6)%(1<<6), hms%(1<<6), frac), nil
}

func decodeTime(v int64) string {
	if v == 0 {
		return _zeroTime
	}
	// 3 byte signed
	v = v << 40 >> 40
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, v/10000, (v%10000)/100, v%100)
}

func decodeTime2(r *reader, dec int) (interface{}, error) {
	var packed int64
	switch dec {
	case 1, 2:
		intPart := int64(r.fixedBE(3)) - _timeIntOffset
		frac := int64(r.fixedBE(1))
		if intPart < 0 && frac > 0 {
			intPart++
			frac -= 0x100
		}
		packed = intPart<<24 + frac*10000
	case 3, 4:
		intPart := int64(r.fixedBE(3)) - _timeIntOffset
		frac := int64(r.fixedBE(2))
		if intPart < 0 && frac > 0 {
			intPart++
			frac -= 0x10000
		}
		packed = intPart<<24 + frac*100
	case 5, 6:
		packed = int64(r.fixedBE(6)) - _timeOffset
	default:
		packed = (int64(r.fixedBE(3)) - _timeIntOffset) << 24
	}
	if r.err != nil {
		return nil, r.err
	}
	if packed == 0 {
		return _zeroTime, nil
	}

	sign := ""
	if packed < 0 {
		sign, packed = "-", -packed
	}
	hms, usec := packed>>24, packed%(1<<24)
	s := fmt.Sprintf("%s%02d:%02d:%02d", sign, (hms>>12)%(1<<10), (hms>>6)%(1<<6), hms%(1<<6))
	if dec > 0 {
		s += "." + fmt.Sprintf("%06d", usec)[:dec]
	}
	return s, nil
}

// isBitSet reads bit i of a binlog bitmap, least significant bit first.
func isBitSet(bitmap []byte, i int) bool {
	return i/8 < len(bitmap) && bitmap[i/8]&(1<<uint(i%8)) != 0
}
